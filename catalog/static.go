package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StaticCatalog is the on-disk shape of a config-driven catalog. It lets a
// deployment serve a fixed hierarchy without a database.
type StaticCatalog struct {
	Shares []StaticShare `yaml:"shares"`
	Tokens []StaticToken `yaml:"tokens"`
}

type StaticShare struct {
	Name    string         `yaml:"name"`
	Schemas []StaticSchema `yaml:"schemas"`
}

type StaticSchema struct {
	Name   string        `yaml:"name"`
	Tables []StaticTable `yaml:"tables"`
}

type StaticTable struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// StaticToken declares a pre-provisioned bearer token. Tables lists grant
// targets as "share/schema/table" paths. ExpiresAt defaults to TokenTTL
// from load time when unset.
type StaticToken struct {
	Name      string     `yaml:"name"`
	Secret    string     `yaml:"secret"`
	Tables    []string   `yaml:"tables"`
	ExpiresAt *time.Time `yaml:"expires_at"`
}

// LoadStatic reads a static catalog file and materializes it into a
// MemoryStore.
func LoadStatic(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static catalog %q: %w", path, err)
	}

	var cat StaticCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse static catalog %q: %w", path, err)
	}
	return cat.Build()
}

// Build materializes the declared hierarchy and tokens into a MemoryStore.
func (c *StaticCatalog) Build() (*MemoryStore, error) {
	ctx := context.Background()
	store := NewMemoryStore()

	tableIDs := make(map[string]Table) // "share/schema/table" -> table
	for _, share := range c.Shares {
		sh, err := store.CreateShare(ctx, share.Name)
		if err != nil {
			return nil, err
		}
		for _, schema := range share.Schemas {
			sc, err := store.CreateSchema(ctx, schema.Name, sh.ID)
			if err != nil {
				return nil, err
			}
			for _, table := range schema.Tables {
				t, err := store.CreateTable(ctx, table.Name, table.Location, sc.ID)
				if err != nil {
					return nil, err
				}
				tableIDs[share.Name+"/"+schema.Name+"/"+table.Name] = t
			}
		}
	}

	for _, tok := range c.Tokens {
		if tok.Secret == "" {
			return nil, fmt.Errorf("static token %q has no secret", tok.Name)
		}
		token, err := store.GenerateToken(ctx, tok.Name, nil)
		if err != nil {
			return nil, err
		}
		// Rewrite the generated token in place with the declared secret,
		// expiry, and grants.
		store.mu.Lock()
		for i := range store.tokens {
			if store.tokens[i].ID != token.ID {
				continue
			}
			store.tokens[i].Secret = tok.Secret
			if tok.ExpiresAt != nil {
				store.tokens[i].ExpiresAt = *tok.ExpiresAt
			}
		}
		for _, path := range tok.Tables {
			t, ok := tableIDs[path]
			if !ok {
				store.mu.Unlock()
				return nil, fmt.Errorf("static token %q grants unknown table %q", tok.Name, path)
			}
			store.grants[token.ID][t.ID] = true
		}
		store.mu.Unlock()
	}
	return store, nil
}
