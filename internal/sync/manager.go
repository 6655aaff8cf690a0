package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventPublisher receives run lifecycle notifications. runID identifies
// one run; publishing the same run outcome twice must be safe.
// Implementations must be safe for concurrent use.
type EventPublisher interface {
	SyncCompleted(ctx context.Context, runID, workspaceID, accountID uuid.UUID, res *Result) error
	SyncFailed(ctx context.Context, runID, workspaceID, accountID uuid.UUID, syncErr error) error
}

// Manager tracks in-flight sync runs keyed by workspace/account. A second
// start for the same key is rejected while the first is running, which is
// the process-level half of the same-account concurrency guard (the other
// half being the store's uniqueness constraints).
type Manager struct {
	engine    *Engine
	publisher EventPublisher // optional

	runsMutex sync.RWMutex
	runs      map[string]context.CancelFunc
}

func NewManager(engine *Engine, publisher EventPublisher) *Manager {
	return &Manager{
		engine:    engine,
		publisher: publisher,
		runs:      make(map[string]context.CancelFunc),
	}
}

func runKey(workspaceID, accountID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", workspaceID, accountID)
}

// StartSync launches a sync run in the background. Returns
// ErrSyncAlreadyRunning when a run for the same account is in flight.
func (m *Manager) StartSync(ctx context.Context, workspaceID, accountID uuid.UUID, maxResults int64) error {
	key := runKey(workspaceID, accountID)

	m.runsMutex.Lock()
	if _, exists := m.runs[key]; exists {
		m.runsMutex.Unlock()
		return ErrSyncAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runs[key] = cancel
	m.runsMutex.Unlock()

	runID := uuid.New()

	go func() {
		defer func() {
			m.runsMutex.Lock()
			delete(m.runs, key)
			m.runsMutex.Unlock()
			cancel()
		}()

		log.WithFields(log.Fields{"run": key, "run_id": runID}).Info("sync start")
		res, err := m.engine.SyncAccount(runCtx, workspaceID, accountID, maxResults)
		if err != nil {
			log.WithField("run", key).WithError(err).Error("sync failed")
			if m.publisher != nil {
				if pubErr := m.publisher.SyncFailed(runCtx, runID, workspaceID, accountID, err); pubErr != nil {
					log.WithField("run", key).WithError(pubErr).Warn("publish sync.failed")
				}
			}
			return
		}

		log.WithFields(log.Fields{
			"run":      key,
			"threads":  res.ThreadsSaved,
			"messages": res.MessagesSaved,
			"skipped":  len(res.Failures),
		}).Info("sync complete")
		for _, f := range res.Failures {
			log.WithField("run", key).WithField("message", f.ExternalID).
				WithError(f.Err).Warn("message skipped")
		}

		if m.publisher != nil {
			if pubErr := m.publisher.SyncCompleted(runCtx, runID, workspaceID, accountID, res); pubErr != nil {
				log.WithField("run", key).WithError(pubErr).Warn("publish sync.completed")
			}
		}
	}()

	return nil
}

// IsRunning reports whether a run for the account is in flight.
func (m *Manager) IsRunning(workspaceID, accountID uuid.UUID) bool {
	m.runsMutex.RLock()
	defer m.runsMutex.RUnlock()
	_, exists := m.runs[runKey(workspaceID, accountID)]
	return exists
}

// Running returns the keys of all in-flight runs.
func (m *Manager) Running() []string {
	m.runsMutex.RLock()
	defer m.runsMutex.RUnlock()

	keys := make([]string, 0, len(m.runs))
	for key := range m.runs {
		keys = append(keys, key)
	}
	return keys
}

// StopAll cancels every in-flight run.
func (m *Manager) StopAll() {
	m.runsMutex.Lock()
	defer m.runsMutex.Unlock()

	for key, cancel := range m.runs {
		log.WithField("run", key).Info("stopping sync")
		cancel()
	}
	m.runs = make(map[string]context.CancelFunc)
}
