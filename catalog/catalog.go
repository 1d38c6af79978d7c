// Package catalog models the Share → Schema → Table hierarchy served to
// clients, plus the bearer tokens and grants that scope visibility into it.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TokenTTL is the fixed lifetime of a bearer token, set at creation and
// never extended.
const TokenTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when a share, schema, table, or token does not
// exist or is not visible to the requesting scope.
var ErrNotFound = errors.New("catalog: not found")

// Share is the top-level named grouping advertised to consuming clients.
type Share struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Schema is a named grouping of tables within a share. Its name is unique
// within the owning share.
type Schema struct {
	ID        uuid.UUID
	Name      string
	ShareID   uuid.UUID
	ShareName string
	CreatedAt time.Time
}

// Table is a named, externally stored dataset. Location is the root URI of
// the dataset and is opaque to the catalog; it is handed to the snapshot
// opener as-is.
type Table struct {
	ID         uuid.UUID
	Name       string
	Location   string
	SchemaID   uuid.UUID
	SchemaName string
	ShareName  string
	CreatedAt  time.Time
}

// Token is a bearer credential scoping data-plane access to the set of
// tables it was granted at creation. Tokens are immutable; an expired token
// is invisible to every lookup.
type Token struct {
	ID        uuid.UUID
	Name      string
	Secret    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Scope selects which slice of the catalog a query may see. The admin scope
// bypasses grant filtering entirely; a token scope sees only tables with a
// live grant, and schemas and shares are visible exactly when they contain
// at least one visible table.
type Scope struct {
	admin   bool
	tokenID uuid.UUID
}

// AdminScope returns the unscoped, see-everything scope.
func AdminScope() Scope {
	return Scope{admin: true}
}

// TokenScope returns a scope limited to the grants of the given token.
func TokenScope(tokenID uuid.UUID) Scope {
	return Scope{tokenID: tokenID}
}

// IsAdmin reports whether the scope bypasses grant filtering.
func (s Scope) IsAdmin() bool { return s.admin }

// TokenID returns the token the scope is limited to. Only meaningful when
// IsAdmin is false.
func (s Scope) TokenID() uuid.UUID { return s.tokenID }

// Store is the persistence contract for the catalog. List operations return
// entities ordered by creation time ascending. Lookup misses and entities
// invisible to the scope fail with ErrNotFound.
type Store interface {
	// ListShares returns the shares visible to the scope.
	ListShares(ctx context.Context, scope Scope) ([]Share, error)
	// ListSchemas returns the visible schemas of the named share. An
	// unknown share yields an empty list, not an error.
	ListSchemas(ctx context.Context, scope Scope, share string) ([]Schema, error)
	// ListTables returns the visible tables of the named schema.
	ListTables(ctx context.Context, scope Scope, share, schema string) ([]Table, error)
	// FindTable resolves a single table by its share/schema/table path.
	FindTable(ctx context.Context, scope Scope, share, schema, table string) (Table, error)

	// ListAllSchemas returns every schema in the catalog, unscoped.
	ListAllSchemas(ctx context.Context) ([]Schema, error)
	// ListAllTables returns every table in the catalog, unscoped.
	ListAllTables(ctx context.Context) ([]Table, error)

	// CreateShare creates a share. Names are unique across the catalog.
	CreateShare(ctx context.Context, name string) (Share, error)
	// CreateSchema creates a schema under an existing share; the share is
	// resolved first and a missing one fails with ErrNotFound.
	CreateSchema(ctx context.Context, name string, shareID uuid.UUID) (Schema, error)
	// CreateTable creates a table under an existing schema.
	CreateTable(ctx context.Context, name, location string, schemaID uuid.UUID) (Table, error)

	// GenerateToken creates a token with a fresh secret, an expiry of
	// TokenTTL from now, and one grant per table id. Creation is
	// all-or-nothing: if any grant cannot be inserted, no token persists.
	GenerateToken(ctx context.Context, name string, tableIDs []uuid.UUID) (Token, error)
	// ListTokens returns all unexpired tokens.
	ListTokens(ctx context.Context) ([]Token, error)
	// TokenByID looks up an unexpired token by id.
	TokenByID(ctx context.Context, id uuid.UUID) (Token, error)
	// TokenBySecret looks up an unexpired token by its bearer secret.
	TokenBySecret(ctx context.Context, secret string) (Token, error)
}
