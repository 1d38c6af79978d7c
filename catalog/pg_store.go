package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL-backed catalog store. Visibility scoping is
// pushed into the queries as joins against the grants table, so a token
// only ever pulls the rows it may see.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore opens a connection pool against the given database URL.
func NewPGStore(ctx context.Context, connString string, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PGStore{
		pool:   pool,
		logger: logger.With("component", "catalog"),
	}, nil
}

// Ping verifies database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Migrate creates the catalog tables if they don't exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shares (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS schemas (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name       TEXT NOT NULL,
			share_id   UUID NOT NULL REFERENCES shares (id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (name, share_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name       TEXT NOT NULL,
			location   TEXT NOT NULL,
			schema_id  UUID NOT NULL REFERENCES schemas (id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (name, schema_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name       TEXT NOT NULL,
			token      TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tokens_for_tables (
			token_id UUID NOT NULL REFERENCES tokens (id),
			table_id UUID NOT NULL REFERENCES tables (id),
			PRIMARY KEY (token_id, table_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PGStore) ListShares(ctx context.Context, scope Scope) ([]Share, error) {
	query := `SELECT id, name, created_at FROM shares ORDER BY created_at ASC`
	args := []any{}
	if !scope.IsAdmin() {
		query = `
			SELECT DISTINCT shares.id, shares.name, shares.created_at
			FROM shares
			JOIN schemas ON schemas.share_id = shares.id
			WHERE schemas.id IN (
				SELECT tables.schema_id
				FROM tables
				JOIN tokens_for_tables g ON g.table_id = tables.id
				JOIN tokens ON tokens.id = g.token_id
				WHERE g.token_id = $1 AND tokens.expires_at > now()
			)
			ORDER BY shares.created_at ASC`
		args = append(args, scope.TokenID())
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		var sh Share
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

func (s *PGStore) ListSchemas(ctx context.Context, scope Scope, share string) ([]Schema, error) {
	query := `
		SELECT schemas.id, schemas.name, schemas.share_id, shares.name, schemas.created_at
		FROM schemas
		JOIN shares ON shares.id = schemas.share_id
		WHERE shares.name = $1
		ORDER BY schemas.created_at ASC`
	args := []any{share}
	if !scope.IsAdmin() {
		query = `
			SELECT schemas.id, schemas.name, schemas.share_id, shares.name, schemas.created_at
			FROM schemas
			JOIN shares ON shares.id = schemas.share_id
			WHERE shares.name = $1
			AND schemas.id IN (
				SELECT tables.schema_id
				FROM tables
				JOIN tokens_for_tables g ON g.table_id = tables.id
				JOIN tokens ON tokens.id = g.token_id
				WHERE g.token_id = $2 AND tokens.expires_at > now()
			)
			ORDER BY schemas.created_at ASC`
		args = append(args, scope.TokenID())
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	return scanSchemas(rows)
}

func (s *PGStore) ListTables(ctx context.Context, scope Scope, share, schema string) ([]Table, error) {
	query := tableSelect + `
		WHERE shares.name = $1 AND schemas.name = $2
		ORDER BY tables.created_at ASC`
	args := []any{share, schema}
	if !scope.IsAdmin() {
		query = tableSelect + `
			JOIN tokens_for_tables g ON g.table_id = tables.id
			JOIN tokens ON tokens.id = g.token_id
			WHERE shares.name = $1 AND schemas.name = $2
			AND g.token_id = $3 AND tokens.expires_at > now()
			ORDER BY tables.created_at ASC`
		args = append(args, scope.TokenID())
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	return scanTables(rows)
}

func (s *PGStore) FindTable(ctx context.Context, scope Scope, share, schema, table string) (Table, error) {
	query := tableSelect + `
		WHERE shares.name = $1 AND schemas.name = $2 AND tables.name = $3`
	args := []any{share, schema, table}
	if !scope.IsAdmin() {
		query = tableSelect + `
			JOIN tokens_for_tables g ON g.table_id = tables.id
			JOIN tokens ON tokens.id = g.token_id
			WHERE shares.name = $1 AND schemas.name = $2 AND tables.name = $3
			AND g.token_id = $4 AND tokens.expires_at > now()`
		args = append(args, scope.TokenID())
	}

	var t Table
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.Location, &t.SchemaID, &t.SchemaName, &t.ShareName, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Table{}, ErrNotFound
	}
	if err != nil {
		return Table{}, fmt.Errorf("find table %s/%s/%s: %w", share, schema, table, err)
	}
	return t, nil
}

func (s *PGStore) ListAllSchemas(ctx context.Context) ([]Schema, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT schemas.id, schemas.name, schemas.share_id, shares.name, schemas.created_at
		FROM schemas
		JOIN shares ON shares.id = schemas.share_id
		ORDER BY schemas.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all schemas: %w", err)
	}
	defer rows.Close()

	return scanSchemas(rows)
}

func (s *PGStore) ListAllTables(ctx context.Context) ([]Table, error) {
	rows, err := s.pool.Query(ctx, tableSelect+` ORDER BY tables.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all tables: %w", err)
	}
	defer rows.Close()

	return scanTables(rows)
}

func (s *PGStore) CreateShare(ctx context.Context, name string) (Share, error) {
	var sh Share
	err := s.pool.QueryRow(ctx,
		`INSERT INTO shares (name) VALUES ($1) RETURNING id, name, created_at`,
		name,
	).Scan(&sh.ID, &sh.Name, &sh.CreatedAt)
	if err != nil {
		return Share{}, fmt.Errorf("create share %q: %w", name, err)
	}
	s.logger.Info("share created", "share", name)
	return sh, nil
}

func (s *PGStore) CreateSchema(ctx context.Context, name string, shareID uuid.UUID) (Schema, error) {
	// Resolve the share first so an unknown owner surfaces as not-found
	// rather than a constraint violation.
	var shareName string
	err := s.pool.QueryRow(ctx, `SELECT name FROM shares WHERE id = $1`, shareID).Scan(&shareName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schema{}, ErrNotFound
	}
	if err != nil {
		return Schema{}, fmt.Errorf("resolve share %s: %w", shareID, err)
	}

	var sc Schema
	err = s.pool.QueryRow(ctx,
		`INSERT INTO schemas (name, share_id) VALUES ($1, $2) RETURNING id, name, share_id, created_at`,
		name, shareID,
	).Scan(&sc.ID, &sc.Name, &sc.ShareID, &sc.CreatedAt)
	if err != nil {
		return Schema{}, fmt.Errorf("create schema %q: %w", name, err)
	}
	sc.ShareName = shareName
	s.logger.Info("schema created", "share", shareName, "schema", name)
	return sc, nil
}

func (s *PGStore) CreateTable(ctx context.Context, name, location string, schemaID uuid.UUID) (Table, error) {
	var schemaName, shareName string
	err := s.pool.QueryRow(ctx, `
		SELECT schemas.name, shares.name
		FROM schemas
		JOIN shares ON shares.id = schemas.share_id
		WHERE schemas.id = $1`, schemaID,
	).Scan(&schemaName, &shareName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Table{}, ErrNotFound
	}
	if err != nil {
		return Table{}, fmt.Errorf("resolve schema %s: %w", schemaID, err)
	}

	var t Table
	err = s.pool.QueryRow(ctx,
		`INSERT INTO tables (name, location, schema_id)
		 VALUES ($1, $2, $3) RETURNING id, name, location, schema_id, created_at`,
		name, location, schemaID,
	).Scan(&t.ID, &t.Name, &t.Location, &t.SchemaID, &t.CreatedAt)
	if err != nil {
		return Table{}, fmt.Errorf("create table %q: %w", name, err)
	}
	t.SchemaName = schemaName
	t.ShareName = shareName
	s.logger.Info("table created", "share", shareName, "schema", schemaName, "table", name, "location", location)
	return t, nil
}

func (s *PGStore) GenerateToken(ctx context.Context, name string, tableIDs []uuid.UUID) (Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tok Token
	err = tx.QueryRow(ctx,
		`INSERT INTO tokens (name, token, expires_at)
		 VALUES ($1, $2, now() + interval '30 days')
		 RETURNING id, name, token, expires_at, created_at`,
		name, uuid.NewString(),
	).Scan(&tok.ID, &tok.Name, &tok.Secret, &tok.ExpiresAt, &tok.CreatedAt)
	if err != nil {
		return Token{}, fmt.Errorf("insert token: %w", err)
	}

	for _, tableID := range tableIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tokens_for_tables (token_id, table_id) VALUES ($1, $2)`,
			tok.ID, tableID,
		); err != nil {
			return Token{}, fmt.Errorf("grant table %s: %w", tableID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Token{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("token generated", "token", name, "grants", len(tableIDs))
	return tok, nil
}

func (s *PGStore) ListTokens(ctx context.Context) ([]Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, token, expires_at, created_at
		FROM tokens
		WHERE expires_at > now()
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var tok Token
		if err := rows.Scan(&tok.ID, &tok.Name, &tok.Secret, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

func (s *PGStore) TokenByID(ctx context.Context, id uuid.UUID) (Token, error) {
	return s.tokenWhere(ctx, `id = $1`, id)
}

func (s *PGStore) TokenBySecret(ctx context.Context, secret string) (Token, error) {
	return s.tokenWhere(ctx, `token = $1`, secret)
}

func (s *PGStore) tokenWhere(ctx context.Context, cond string, arg any) (Token, error) {
	var tok Token
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, token, expires_at, created_at
		FROM tokens
		WHERE `+cond+` AND expires_at > now()`, arg,
	).Scan(&tok.ID, &tok.Name, &tok.Secret, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("lookup token: %w", err)
	}
	return tok, nil
}

const tableSelect = `
	SELECT tables.id, tables.name, tables.location, tables.schema_id,
	       schemas.name, shares.name, tables.created_at
	FROM tables
	JOIN schemas ON schemas.id = tables.schema_id
	JOIN shares ON shares.id = schemas.share_id`

func scanSchemas(rows pgx.Rows) ([]Schema, error) {
	var schemas []Schema
	for rows.Next() {
		var sc Schema
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.ShareID, &sc.ShareName, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		schemas = append(schemas, sc)
	}
	return schemas, rows.Err()
}

func scanTables(rows pgx.Rows) ([]Table, error) {
	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.ID, &t.Name, &t.Location, &t.SchemaID, &t.SchemaName, &t.ShareName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
