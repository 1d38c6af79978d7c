package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory catalog store. It backs the static-catalog
// deployment mode and tests, with the same visibility and not-found
// semantics as the Postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	shares  []Share
	schemas []Schema
	tables  []Table
	tokens  []Token
	grants  map[uuid.UUID]map[uuid.UUID]bool // token id -> table ids

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[uuid.UUID]map[uuid.UUID]bool),
		now:    time.Now,
	}
}

// visibleTables returns the set of table ids the scope may see, or nil for
// the admin scope (meaning: no filtering).
func (s *MemoryStore) visibleTables(scope Scope) map[uuid.UUID]bool {
	if scope.IsAdmin() {
		return nil
	}
	for _, tok := range s.tokens {
		if tok.ID == scope.TokenID() && tok.ExpiresAt.After(s.now()) {
			return s.grants[tok.ID]
		}
	}
	return map[uuid.UUID]bool{}
}

func (s *MemoryStore) ListShares(_ context.Context, scope Scope) ([]Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleTables(scope)
	var out []Share
	for _, share := range s.shares {
		if visible == nil || s.shareHasVisibleTable(share.ID, visible) {
			out = append(out, share)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListSchemas(_ context.Context, scope Scope, share string) ([]Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleTables(scope)
	var out []Schema
	for _, schema := range s.schemas {
		if schema.ShareName != share {
			continue
		}
		if visible == nil || s.schemaHasVisibleTable(schema.ID, visible) {
			out = append(out, schema)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTables(_ context.Context, scope Scope, share, schema string) ([]Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleTables(scope)
	var out []Table
	for _, table := range s.tables {
		if table.ShareName != share || table.SchemaName != schema {
			continue
		}
		if visible == nil || visible[table.ID] {
			out = append(out, table)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindTable(_ context.Context, scope Scope, share, schema, table string) (Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleTables(scope)
	for _, t := range s.tables {
		if t.ShareName != share || t.SchemaName != schema || t.Name != table {
			continue
		}
		if visible == nil || visible[t.ID] {
			return t, nil
		}
	}
	return Table{}, ErrNotFound
}

func (s *MemoryStore) ListAllSchemas(_ context.Context) ([]Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schema, len(s.schemas))
	copy(out, s.schemas)
	return out, nil
}

func (s *MemoryStore) ListAllTables(_ context.Context) ([]Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Table, len(s.tables))
	copy(out, s.tables)
	return out, nil
}

func (s *MemoryStore) CreateShare(_ context.Context, name string) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, share := range s.shares {
		if share.Name == name {
			return Share{}, fmt.Errorf("share %q already exists", name)
		}
	}
	share := Share{ID: uuid.New(), Name: name, CreatedAt: s.now().UTC()}
	s.shares = append(s.shares, share)
	return share, nil
}

func (s *MemoryStore) CreateSchema(_ context.Context, name string, shareID uuid.UUID) (Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owner *Share
	for i := range s.shares {
		if s.shares[i].ID == shareID {
			owner = &s.shares[i]
			break
		}
	}
	if owner == nil {
		return Schema{}, ErrNotFound
	}
	for _, schema := range s.schemas {
		if schema.ShareID == shareID && schema.Name == name {
			return Schema{}, fmt.Errorf("schema %q already exists in share %q", name, owner.Name)
		}
	}
	schema := Schema{
		ID:        uuid.New(),
		Name:      name,
		ShareID:   shareID,
		ShareName: owner.Name,
		CreatedAt: s.now().UTC(),
	}
	s.schemas = append(s.schemas, schema)
	return schema, nil
}

func (s *MemoryStore) CreateTable(_ context.Context, name, location string, schemaID uuid.UUID) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owner *Schema
	for i := range s.schemas {
		if s.schemas[i].ID == schemaID {
			owner = &s.schemas[i]
			break
		}
	}
	if owner == nil {
		return Table{}, ErrNotFound
	}
	for _, table := range s.tables {
		if table.SchemaID == schemaID && table.Name == name {
			return Table{}, fmt.Errorf("table %q already exists in schema %q", name, owner.Name)
		}
	}
	table := Table{
		ID:         uuid.New(),
		Name:       name,
		Location:   location,
		SchemaID:   schemaID,
		SchemaName: owner.Name,
		ShareName:  owner.ShareName,
		CreatedAt:  s.now().UTC(),
	}
	s.tables = append(s.tables, table)
	return table, nil
}

func (s *MemoryStore) GenerateToken(_ context.Context, name string, tableIDs []uuid.UUID) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every grant target before touching state, so a bad id leaves
	// neither a token nor a partial grant set behind.
	for _, id := range tableIDs {
		found := false
		for _, table := range s.tables {
			if table.ID == id {
				found = true
				break
			}
		}
		if !found {
			return Token{}, fmt.Errorf("grant table %s: %w", id, ErrNotFound)
		}
	}

	now := s.now().UTC()
	token := Token{
		ID:        uuid.New(),
		Name:      name,
		Secret:    uuid.NewString(),
		ExpiresAt: now.Add(TokenTTL),
		CreatedAt: now,
	}
	granted := make(map[uuid.UUID]bool, len(tableIDs))
	for _, id := range tableIDs {
		granted[id] = true
	}
	s.tokens = append(s.tokens, token)
	s.grants[token.ID] = granted
	return token, nil
}

func (s *MemoryStore) ListTokens(_ context.Context) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Token
	for _, tok := range s.tokens {
		if tok.ExpiresAt.After(s.now()) {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (s *MemoryStore) TokenByID(_ context.Context, id uuid.UUID) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tok := range s.tokens {
		if tok.ID == id && tok.ExpiresAt.After(s.now()) {
			return tok, nil
		}
	}
	return Token{}, ErrNotFound
}

func (s *MemoryStore) TokenBySecret(_ context.Context, secret string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tok := range s.tokens {
		if tok.Secret == secret && tok.ExpiresAt.After(s.now()) {
			return tok, nil
		}
	}
	return Token{}, ErrNotFound
}

func (s *MemoryStore) shareHasVisibleTable(shareID uuid.UUID, visible map[uuid.UUID]bool) bool {
	for _, schema := range s.schemas {
		if schema.ShareID == shareID && s.schemaHasVisibleTable(schema.ID, visible) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) schemaHasVisibleTable(schemaID uuid.UUID, visible map[uuid.UUID]bool) bool {
	for _, table := range s.tables {
		if table.SchemaID == schemaID && visible[table.ID] {
			return true
		}
	}
	return false
}
