package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loftcrm/mailsync/internal/sync"
)

// defaultThreadVisibility is applied to every thread this engine creates.
const defaultThreadVisibility = "subject"

const recipientRoleFrom = "from"

// SaveThreads inserts one row per new thread for the account's channel.
// The (channel, externalId) uniqueness constraint with conflict-ignore
// makes concurrent runs safe; the returned count reflects rows actually
// inserted.
func (w *WorkspaceStore) SaveThreads(ctx context.Context, threads []sync.RemoteThread, channelID uuid.UUID) (int, error) {
	stmt := fmt.Sprintf(`INSERT INTO %s (id, "externalId", subject, visibility, "messageChannelId")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ("messageChannelId", "externalId") DO NOTHING`,
		w.table("messageThread"))

	inserted := 0
	for _, t := range threads {
		tag, err := w.pool.Exec(ctx, stmt,
			uuid.New(), t.ExternalID, t.Snippet, defaultThreadVisibility, channelID)
		if err != nil {
			return inserted, fmt.Errorf("insert thread %s: %w", t.ExternalID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// SaveMessages persists each message and its single "from" recipient in
// one transaction per message. A failing message is rolled back, recorded
// and skipped; it never aborts the remaining batch.
func (w *WorkspaceStore) SaveMessages(ctx context.Context, msgs []sync.FullMessage, opts sync.SaveOptions) (*sync.SaveReport, error) {
	report := &sync.SaveReport{}

	for _, m := range msgs {
		inserted, err := w.saveMessage(ctx, m, opts)
		if err != nil {
			report.Failures = append(report.Failures, sync.MessageFailure{
				ExternalID: m.ExternalID,
				Err:        err,
			})
			continue
		}
		if inserted {
			report.Saved++
		}
	}

	return report, nil
}

func (w *WorkspaceStore) saveMessage(ctx context.Context, m sync.FullMessage, opts sync.SaveOptions) (bool, error) {
	receivedAt, err := m.ReceivedAt()
	if err != nil {
		return false, err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// The parent thread must already exist: threads are always saved
	// before bodies are fetched. A miss is an invariant violation for
	// this message, never an orphan insert.
	var threadID uuid.UUID
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE "messageChannelId" = $1 AND "externalId" = $2`,
			w.table("messageThread")),
		opts.ChannelID, m.ThreadExternalID,
	).Scan(&threadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("parent thread %s: %w", m.ThreadExternalID, sync.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("look up thread %s: %w", m.ThreadExternalID, err)
	}

	// Best-effort contact match on the sender address.
	var personID *uuid.UUID
	var pid uuid.UUID
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE email = $1`, w.table("person")),
		m.FromHandle,
	).Scan(&pid)
	switch {
	case err == nil:
		personID = &pid
	case errors.Is(err, pgx.ErrNoRows):
		// no matching contact, reference stays NULL
	default:
		return false, fmt.Errorf("look up person %s: %w", m.FromHandle, err)
	}

	messageID := uuid.New()
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, "externalId", "headerMessageId", subject, date, "messageThreadId", direction, body)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT ("externalId") DO NOTHING`,
			w.table("message")),
		messageID, m.ExternalID, m.HeaderMessageID, m.Subject, receivedAt,
		threadID, sync.MessageDirection(m.FromHandle, opts.AccountHandle), m.Body,
	)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", m.ExternalID, err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent run won the insert; nothing more to write.
		return false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, "messageId", role, handle, "displayName", "personId", "workspaceMemberId")
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			w.table("messageRecipient")),
		uuid.New(), messageID, recipientRoleFrom, m.FromHandle, m.FromDisplayName,
		personID, opts.MemberID,
	)
	if err != nil {
		return false, fmt.Errorf("insert recipient for %s: %w", m.ExternalID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit message %s: %w", m.ExternalID, err)
	}
	return true, nil
}
