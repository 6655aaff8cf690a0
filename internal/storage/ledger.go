package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loftcrm/mailsync/internal/sync"
)

// LoadKnownState returns the dedup snapshot for the account: its channel
// plus every thread and message external id already persisted under it.
// The snapshot is taken once per run and never refreshed mid-run.
func (w *WorkspaceStore) LoadKnownState(ctx context.Context, accountID uuid.UUID) (*sync.KnownState, error) {
	state := &sync.KnownState{
		ThreadExternalIDs:  make(map[string]struct{}),
		MessageExternalIDs: make(map[string]struct{}),
	}

	// The channel is provisioned upstream; its absence is fatal here.
	err := w.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE "connectedAccountId" = $1 ORDER BY id LIMIT 1`,
			w.table("messageChannel")),
		accountID,
	).Scan(&state.ChannelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, sync.ErrNoChannel)
	}
	if err != nil {
		return nil, fmt.Errorf("load channel for account %s: %w", accountID, err)
	}

	threadRows, err := w.pool.Query(ctx,
		fmt.Sprintf(`SELECT "externalId" FROM %s WHERE "messageChannelId" = $1`,
			w.table("messageThread")),
		state.ChannelID,
	)
	if err != nil {
		return nil, fmt.Errorf("load known threads: %w", err)
	}
	defer threadRows.Close()

	for threadRows.Next() {
		var id string
		if err := threadRows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known thread: %w", err)
		}
		state.ThreadExternalIDs[id] = struct{}{}
	}
	if err := threadRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known threads: %w", err)
	}

	messageRows, err := w.pool.Query(ctx,
		fmt.Sprintf(`SELECT m."externalId" FROM %s m
			JOIN %s t ON m."messageThreadId" = t.id
			WHERE t."messageChannelId" = $1`,
			w.table("message"), w.table("messageThread")),
		state.ChannelID,
	)
	if err != nil {
		return nil, fmt.Errorf("load known messages: %w", err)
	}
	defer messageRows.Close()

	for messageRows.Next() {
		var id string
		if err := messageRows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known message: %w", err)
		}
		state.MessageExternalIDs[id] = struct{}{}
	}
	if err := messageRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known messages: %w", err)
	}

	return state, nil
}
