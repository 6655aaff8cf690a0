package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loftcrm/mailsync/internal/sync"
)

const streamName = "MAILBOX_SYNC"

// Publisher emits sync run lifecycle events to NATS JetStream. Events are
// deduplicated by MsgId within the stream's duplicate window.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js}, nil
}

// EnsureStream creates the sync event stream if it does not exist.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	info, err := p.js.StreamInfo(streamName)
	if err == nil && info != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{"workspace.*.sync.>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	})
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("create stream: %w", err)
	}

	return nil
}

type syncEvent struct {
	RunID           string    `json:"run_id"`
	WorkspaceID     string    `json:"workspace_id"`
	AccountID       string    `json:"account_id"`
	Status          string    `json:"status"`
	ThreadsSaved    int       `json:"threads_saved"`
	MessagesSaved   int       `json:"messages_saved"`
	MessagesSkipped int       `json:"messages_skipped"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// SyncCompleted publishes a run summary event.
func (p *Publisher) SyncCompleted(_ context.Context, runID, workspaceID, accountID uuid.UUID, res *sync.Result) error {
	return p.publish(runID, workspaceID, "completed", syncEvent{
		WorkspaceID:     workspaceID.String(),
		AccountID:       accountID.String(),
		Status:          "completed",
		ThreadsSaved:    res.ThreadsSaved,
		MessagesSaved:   res.MessagesSaved,
		MessagesSkipped: len(res.Failures),
	})
}

// SyncFailed publishes a run failure event.
func (p *Publisher) SyncFailed(_ context.Context, runID, workspaceID, accountID uuid.UUID, syncErr error) error {
	return p.publish(runID, workspaceID, "failed", syncEvent{
		WorkspaceID: workspaceID.String(),
		AccountID:   accountID.String(),
		Status:      "failed",
		Error:       syncErr.Error(),
	})
}

// eventMsgID is deterministic for one run outcome, so republishing the
// same event within the stream's duplicate window is collapsed.
func eventMsgID(runID uuid.UUID, status string) string {
	return fmt.Sprintf("%s.%s", runID, status)
}

func (p *Publisher) publish(runID, workspaceID uuid.UUID, status string, event syncEvent) error {
	event.RunID = runID.String()
	event.OccurredAt = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	subject := fmt.Sprintf("workspace.%s.sync.%s", workspaceID, status)
	if _, err := p.js.Publish(subject, payload, nats.MsgId(eventMsgID(runID, status))); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
