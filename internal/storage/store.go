package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loftcrm/mailsync/internal/sync"
)

// Store is the shared Postgres handle. Each workspace lives in its own
// schema; the public.workspace table maps workspace ids to schema names.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Workspace resolves a workspace id to its schema-scoped store handle.
func (s *Store) Workspace(ctx context.Context, workspaceID uuid.UUID) (*WorkspaceStore, error) {
	var schema string
	err := s.pool.QueryRow(ctx,
		`SELECT "schemaName" FROM public.workspace WHERE id = $1`,
		workspaceID,
	).Scan(&schema)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s has no provisioned store: %w", workspaceID, sync.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", workspaceID, err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		schema,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check schema %s: %w", schema, err)
	}
	if !exists {
		return nil, fmt.Errorf("schema %s for workspace %s cannot be opened: %w", schema, workspaceID, sync.ErrNotFound)
	}

	return &WorkspaceStore{pool: s.pool, schema: schema}, nil
}

// WorkspaceStore is a query/transaction handle scoped to one workspace
// schema. It implements sync.Store.
type WorkspaceStore struct {
	pool   *pgxpool.Pool
	schema string
}

func (w *WorkspaceStore) Schema() string {
	return w.schema
}

// table returns the schema-qualified, quoted table name.
func (w *WorkspaceStore) table(name string) string {
	return pgx.Identifier{w.schema, name}.Sanitize()
}
