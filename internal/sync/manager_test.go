package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateClient blocks ListThreads until released, keeping a run in flight
// for as long as the test needs.
type gateClient struct {
	release chan struct{}
}

func (c *gateClient) ListThreads(ctx context.Context, _ int64) ([]RemoteThread, error) {
	select {
	case <-c.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *gateClient) BulkFetch(context.Context, []string) ([][]byte, error) {
	return nil, nil
}

type publishedOutcome struct {
	runID uuid.UUID
	res   *Result
	err   error
}

type recordingPublisher struct {
	completed chan publishedOutcome
	failed    chan publishedOutcome
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		completed: make(chan publishedOutcome, 4),
		failed:    make(chan publishedOutcome, 4),
	}
}

func (p *recordingPublisher) SyncCompleted(_ context.Context, runID, _, _ uuid.UUID, res *Result) error {
	p.completed <- publishedOutcome{runID: runID, res: res}
	return nil
}

func (p *recordingPublisher) SyncFailed(_ context.Context, runID, _, _ uuid.UUID, err error) error {
	p.failed <- publishedOutcome{runID: runID, err: err}
	return nil
}

func TestManagerRejectsConcurrentSameAccountRuns(t *testing.T) {
	client := &gateClient{release: make(chan struct{})}
	engine := newTestEngine(newFakeStore(), nil)
	engine.clients = func(context.Context, Account) (RemoteClient, error) { return client, nil }
	publisher := newRecordingPublisher()
	manager := NewManager(engine, publisher)

	workspaceID, accountID := uuid.New(), uuid.New()

	require.NoError(t, manager.StartSync(context.Background(), workspaceID, accountID, 0))
	assert.True(t, manager.IsRunning(workspaceID, accountID))
	assert.Len(t, manager.Running(), 1)

	err := manager.StartSync(context.Background(), workspaceID, accountID, 0)
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)

	// A different account is not blocked.
	require.NoError(t, manager.StartSync(context.Background(), workspaceID, uuid.New(), 0))

	close(client.release)
	runIDs := make(map[uuid.UUID]struct{})
	for i := 0; i < 2; i++ {
		select {
		case out := <-publisher.completed:
			assert.Zero(t, out.res.ThreadsSaved)
			runIDs[out.runID] = struct{}{}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for completion event")
		}
	}
	assert.Len(t, runIDs, 2, "each run carries its own run id")

	assert.Eventually(t, func() bool {
		return !manager.IsRunning(workspaceID, accountID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerPublishesFailure(t *testing.T) {
	engine := NewEngine(
		&fakeResolver{err: ErrNotFound},
		func(context.Context, Account) (RemoteClient, error) { return &fakeClient{}, nil },
	)
	publisher := newRecordingPublisher()
	manager := NewManager(engine, publisher)

	require.NoError(t, manager.StartSync(context.Background(), uuid.New(), uuid.New(), 0))

	select {
	case out := <-publisher.failed:
		assert.ErrorIs(t, out.err, ErrNotFound)
		assert.NotEqual(t, uuid.Nil, out.runID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure event")
	}
}

func TestManagerStopAll(t *testing.T) {
	client := &gateClient{release: make(chan struct{})}
	engine := newTestEngine(newFakeStore(), nil)
	engine.clients = func(context.Context, Account) (RemoteClient, error) { return client, nil }
	manager := NewManager(engine, nil)

	workspaceID, accountID := uuid.New(), uuid.New()
	require.NoError(t, manager.StartSync(context.Background(), workspaceID, accountID, 0))

	manager.StopAll()
	assert.Empty(t, manager.Running())
}
