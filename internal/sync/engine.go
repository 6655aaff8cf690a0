package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxResults bounds the remote thread listing when the caller does
// not supply a cap.
const DefaultMaxResults = 500

// Engine reconciles remote mailbox state against the local store for one
// connected account per invocation. It performs no logging and surfaces
// all fatal errors verbatim; per-message persistence failures are the one
// place isolation applies and are reported in the Result instead.
type Engine struct {
	resolver AccountResolver
	clients  ClientFactory
}

func NewEngine(resolver AccountResolver, clients ClientFactory) *Engine {
	return &Engine{resolver: resolver, clients: clients}
}

// SyncAccount runs one full incremental sync: list remote threads, diff
// against the known set, persist new threads, list message ids for all
// remote threads, diff again, bulk-fetch only the missing bodies and
// persist them. Running twice with no new remote data writes nothing on
// the second run; dedup rests entirely on the known-state snapshot plus
// the store's conflict-ignore uniqueness constraints.
func (e *Engine) SyncAccount(ctx context.Context, workspaceID, accountID uuid.UUID, maxResults int64) (*Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	ac, err := e.resolver.Resolve(ctx, workspaceID, accountID)
	if err != nil {
		return nil, err
	}

	client, err := e.clients(ctx, ac.Account)
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}
	lister := NewLister(client)

	threads, err := lister.ListThreads(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	if len(threads) == 0 {
		return &Result{}, nil
	}

	known, err := ac.Store.LoadKnownState(ctx, ac.Account.ID)
	if err != nil {
		return nil, err
	}

	// Threads first: message rows reference thread rows, so thread
	// persistence must complete before bodies are fetched.
	newThreads := make([]RemoteThread, 0, len(threads))
	for _, t := range threads {
		if !known.KnowsThread(t.ExternalID) {
			newThreads = append(newThreads, t)
		}
	}

	threadsSaved := 0
	if len(newThreads) > 0 {
		threadsSaved, err = ac.Store.SaveThreads(ctx, newThreads, known.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("save threads: %w", err)
		}
	}

	// Message ids are listed for every remote thread, not only new ones:
	// new messages land in already-known threads too.
	threadIDs := make([]string, len(threads))
	for i, t := range threads {
		threadIDs[i] = t.ExternalID
	}

	idsByThread, err := lister.ListMessageIDs(ctx, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}

	seen := make(map[string]struct{})
	var newMessageIDs []string
	for _, threadID := range threadIDs {
		for _, id := range idsByThread[threadID] {
			if known.KnowsMessage(id) {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			newMessageIDs = append(newMessageIDs, id)
		}
	}

	result := &Result{ThreadsSaved: threadsSaved}
	if len(newMessageIDs) == 0 {
		return result, nil
	}

	msgs, err := lister.FetchMessages(ctx, newMessageIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	report, err := ac.Store.SaveMessages(ctx, msgs, SaveOptions{
		ChannelID:     known.ChannelID,
		MemberID:      ac.Account.MemberID,
		AccountHandle: ac.Account.Handle,
	})
	if err != nil {
		return nil, fmt.Errorf("save messages: %w", err)
	}

	result.MessagesSaved = report.Saved
	result.Failures = report.Failures
	return result, nil
}
