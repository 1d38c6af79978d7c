//go:build integration

package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/delta-incubator/riverbank/catalog"
)

// seedHierarchy creates share/schema/table rows under a unique prefix and
// returns the created tables keyed by "schema/table".
func seedHierarchy(t *testing.T, store *catalog.PGStore, share string, schemas map[string][]string) map[string]catalog.Table {
	t.Helper()
	ctx := context.Background()

	sh, err := store.CreateShare(ctx, share)
	if err != nil {
		t.Fatalf("create share %s: %v", share, err)
	}
	tables := make(map[string]catalog.Table)
	for schemaName, tableNames := range schemas {
		sc, err := store.CreateSchema(ctx, schemaName, sh.ID)
		if err != nil {
			t.Fatalf("create schema %s: %v", schemaName, err)
		}
		for _, tableName := range tableNames {
			tb, err := store.CreateTable(ctx, tableName, "s3://data/"+share+"/"+tableName, sc.ID)
			if err != nil {
				t.Fatalf("create table %s: %v", tableName, err)
			}
			tables[schemaName+"/"+tableName] = tb
		}
	}
	return tables
}

func TestScenario_CatalogVisibility(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	tables := seedHierarchy(t, store, "vis_sales", map[string][]string{
		"eu": {"orders", "refunds"},
		"us": {"orders"},
	})
	seedHierarchy(t, store, "vis_ops", map[string][]string{
		"logs": {"access"},
	})

	tok, err := store.GenerateToken(ctx, "vis_partner", []uuid.UUID{tables["eu/orders"].ID})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	scope := catalog.TokenScope(tok.ID)

	shares, err := store.ListShares(ctx, scope)
	if err != nil {
		t.Fatalf("list shares: %v", err)
	}
	if len(shares) != 1 || shares[0].Name != "vis_sales" {
		t.Fatalf("expected only vis_sales, got %+v", shares)
	}

	schemas, err := store.ListSchemas(ctx, scope, "vis_sales")
	if err != nil {
		t.Fatalf("list schemas: %v", err)
	}
	if len(schemas) != 1 || schemas[0].Name != "eu" {
		t.Fatalf("expected only the eu schema, got %+v", schemas)
	}

	got, err := store.ListTables(ctx, scope, "vis_sales", "eu")
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(got) != 1 || got[0].Name != "orders" {
		t.Fatalf("expected only orders, got %+v", got)
	}
	if got[0].ShareName != "vis_sales" || got[0].SchemaName != "eu" {
		t.Fatalf("denormalized names wrong: %+v", got[0])
	}

	// Ungranted table in a visible schema resolves for the admin but not
	// for the token.
	if _, err := store.FindTable(ctx, scope, "vis_sales", "eu", "refunds"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("ungranted table: got err=%v, want ErrNotFound", err)
	}
	if _, err := store.FindTable(ctx, catalog.AdminScope(), "vis_sales", "eu", "refunds"); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
}

func TestScenario_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	tables := seedHierarchy(t, store, "life_sales", map[string][]string{
		"eu": {"orders"},
	})

	tok, err := store.GenerateToken(ctx, "life_partner", []uuid.UUID{tables["eu/orders"].ID})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	window := tok.ExpiresAt.Sub(tok.CreatedAt)
	if window < 29*24*time.Hour || window > 31*24*time.Hour {
		t.Fatalf("expiry window = %v, want ~30 days", window)
	}

	if _, err := store.TokenBySecret(ctx, tok.Secret); err != nil {
		t.Fatalf("token by secret: %v", err)
	}
	if _, err := store.TokenByID(ctx, tok.ID); err != nil {
		t.Fatalf("token by id: %v", err)
	}

	// Force-expire the token and verify it vanishes from every lookup and
	// its grants stop applying.
	execSQL(t, `UPDATE tokens SET expires_at = now() - interval '1 hour' WHERE id = $1`, tok.ID)

	if _, err := store.TokenBySecret(ctx, tok.Secret); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expired token by secret: got err=%v, want ErrNotFound", err)
	}
	if _, err := store.TokenByID(ctx, tok.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expired token by id: got err=%v, want ErrNotFound", err)
	}
	if shares, _ := store.ListShares(ctx, catalog.TokenScope(tok.ID)); len(shares) != 0 {
		t.Fatalf("expired token still sees shares: %+v", shares)
	}
	if _, err := store.FindTable(ctx, catalog.TokenScope(tok.ID), "life_sales", "eu", "orders"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expired token still resolves tables: err=%v", err)
	}

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	for _, listed := range tokens {
		if listed.ID == tok.ID {
			t.Fatal("expired token still listed")
		}
	}
}

func TestScenario_TokenGrantAtomicity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	tables := seedHierarchy(t, store, "atomic_sales", map[string][]string{
		"eu": {"orders"},
	})

	// The second grant violates the foreign key, so the whole transaction
	// rolls back and no token row survives.
	_, err := store.GenerateToken(ctx, "atomic_broken", []uuid.UUID{
		tables["eu/orders"].ID,
		uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error for unknown grant target")
	}

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	for _, tok := range tokens {
		if tok.Name == "atomic_broken" {
			t.Fatal("failed generation left a token behind")
		}
	}
}

func TestScenario_ReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, err := store.CreateSchema(ctx, "orphan", uuid.New()); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("schema under unknown share: got err=%v, want ErrNotFound", err)
	}
	if _, err := store.CreateTable(ctx, "orphan", "s3://x/y", uuid.New()); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("table under unknown schema: got err=%v, want ErrNotFound", err)
	}
}

func TestScenario_MigrateIsIdempotent(t *testing.T) {
	store := newStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
