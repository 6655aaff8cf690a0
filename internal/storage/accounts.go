package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loftcrm/mailsync/internal/sync"
)

const accountProvider = "google"

// Resolver implements sync.AccountResolver: it turns a workspace/account
// id pair into a schema-scoped store handle plus the account's credential
// bundle and owning member. Read-only; nothing downstream re-resolves.
type Resolver struct {
	store *Store
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, workspaceID, accountID uuid.UUID) (*sync.AccountContext, error) {
	ws, err := r.store.Workspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	acct := sync.Account{ID: accountID}
	err = ws.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT handle, "accessToken", "refreshToken", "accountOwnerId"
			FROM %s WHERE id = $1 AND provider = $2`, ws.table("connectedAccount")),
		accountID, accountProvider,
	).Scan(&acct.Handle, &acct.AccessToken, &acct.RefreshToken, &acct.MemberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("connected account %s: %w", accountID, sync.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load connected account %s: %w", accountID, err)
	}

	if acct.RefreshToken == "" {
		return nil, fmt.Errorf("account %s has no refresh token: %w", accountID, sync.ErrInvalidCredentials)
	}

	return &sync.AccountContext{Account: acct, Store: ws}, nil
}
