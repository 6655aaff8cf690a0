package storage

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var workspaceDDL string

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ProvisionWorkspace registers a workspace and creates its schema with
// every table the sync engine reads or writes, including the uniqueness
// constraints the concurrency hardening relies on. Idempotent.
func (s *Store) ProvisionWorkspace(ctx context.Context, workspaceID uuid.UUID, schemaName string) error {
	if !schemaNamePattern.MatchString(schemaName) {
		return fmt.Errorf("invalid schema name %q", schemaName)
	}

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.workspace (
			id UUID PRIMARY KEY,
			"schemaName" TEXT NOT NULL UNIQUE
		)
	`)
	if err != nil {
		return fmt.Errorf("create workspace registry: %w", err)
	}

	quoted := pgx.Identifier{schemaName}.Sanitize()
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaName, err)
	}

	ddl := strings.ReplaceAll(workspaceDDL, "{{schema}}", quoted)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create workspace tables: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO public.workspace (id, "schemaName")
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET "schemaName" = EXCLUDED."schemaName"
	`, workspaceID, schemaName)
	if err != nil {
		return fmt.Errorf("register workspace %s: %w", workspaceID, err)
	}

	return nil
}
