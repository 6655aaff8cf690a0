package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the sync engine. Callers match with errors.Is.
var (
	// ErrNotFound covers unknown workspaces, unprovisioned schemas and
	// missing connected accounts.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials means the account has no usable refresh token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoChannel means the account has no message channel provisioned.
	// The channel is created upstream of this engine, never here.
	ErrNoChannel = errors.New("no message channel for account")

	// ErrUpstreamUnavailable wraps remote API transport/auth failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSyncAlreadyRunning is returned by the manager when a run for the
	// same workspace/account pair is already in flight.
	ErrSyncAlreadyRunning = errors.New("sync already running")
)

// Message directions relative to the connected account.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Account is a resolved connected account: credentials plus owning member.
type Account struct {
	ID           uuid.UUID
	Handle       string // mailbox address, e.g. "owner@acme.com"
	AccessToken  string
	RefreshToken string
	MemberID     uuid.UUID
}

// RemoteThread is a provider-side conversation thread reference.
type RemoteThread struct {
	ExternalID string
	Snippet    string
}

// FullMessage is one fully fetched remote message, normalized to the
// fields the persister consumes.
type FullMessage struct {
	ExternalID       string
	ThreadExternalID string
	HeaderMessageID  string
	Subject          string
	FromHandle       string
	FromDisplayName  string
	InternalDate     string // provider-supplied, milliseconds since epoch
	Body             string
}

// ReceivedAt converts the provider's millisecond timestamp.
func (m FullMessage) ReceivedAt() (time.Time, error) {
	ms, err := strconv.ParseInt(m.InternalDate, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse internalDate %q: %w", m.InternalDate, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// MessageDirection classifies a message by its sender relative to the
// account's own mailbox address.
func MessageDirection(fromHandle, accountHandle string) string {
	if fromHandle == accountHandle {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// KnownState is the dedup snapshot loaded once per run.
type KnownState struct {
	ChannelID          uuid.UUID
	ThreadExternalIDs  map[string]struct{}
	MessageExternalIDs map[string]struct{}
}

func (s *KnownState) KnowsThread(externalID string) bool {
	_, ok := s.ThreadExternalIDs[externalID]
	return ok
}

func (s *KnownState) KnowsMessage(externalID string) bool {
	_, ok := s.MessageExternalIDs[externalID]
	return ok
}

// SaveOptions carries the per-run references message persistence needs.
type SaveOptions struct {
	ChannelID     uuid.UUID
	MemberID      uuid.UUID
	AccountHandle string
}

// MessageFailure records one message whose transaction failed and was
// skipped. The rest of the batch is unaffected.
type MessageFailure struct {
	ExternalID string
	Err        error
}

// SaveReport summarizes a SaveMessages batch.
type SaveReport struct {
	Saved    int
	Failures []MessageFailure
}

// Result summarizes one full sync run.
type Result struct {
	ThreadsSaved  int
	MessagesSaved int
	Failures      []MessageFailure
}

// Store is the workspace-scoped persistence handle, acquired once per run
// by the account resolver and never shared across runs.
type Store interface {
	// LoadKnownState returns the dedup snapshot for the account's channel.
	// Fails with ErrNoChannel when the channel has not been provisioned.
	LoadKnownState(ctx context.Context, accountID uuid.UUID) (*KnownState, error)

	// SaveThreads inserts new thread rows, ignoring external ids that
	// already exist for the channel. Returns the number inserted.
	SaveThreads(ctx context.Context, threads []RemoteThread, channelID uuid.UUID) (int, error)

	// SaveMessages persists each message and its "from" recipient in an
	// independent transaction. One message failing does not abort the rest.
	SaveMessages(ctx context.Context, msgs []FullMessage, opts SaveOptions) (*SaveReport, error)
}

// AccountContext is the typed bundle produced by account resolution.
type AccountContext struct {
	Account Account
	Store   Store
}

// AccountResolver turns opaque workspace/account ids into a usable store
// handle and credential bundle. Sole entry point for failure detection;
// downstream components never re-resolve.
type AccountResolver interface {
	Resolve(ctx context.Context, workspaceID, accountID uuid.UUID) (*AccountContext, error)
}

// RemoteClient is the engine's view of the mail provider: paged thread
// listing plus a batched fetch returning raw payloads keyed by request
// order. Retry/backoff lives behind this interface, not in the engine.
type RemoteClient interface {
	ListThreads(ctx context.Context, maxResults int64) ([]RemoteThread, error)
	BulkFetch(ctx context.Context, uris []string) ([][]byte, error)
}

// ClientFactory builds an authenticated RemoteClient for an account.
type ClientFactory func(ctx context.Context, acct Account) (RemoteClient, error)
