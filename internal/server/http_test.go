package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loftcrm/mailsync/internal/sync"
)

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, uuid.UUID, uuid.UUID) (*sync.AccountContext, error) {
	return nil, sync.ErrNotFound
}

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	engine := sync.NewEngine(stubResolver{}, func(context.Context, sync.Account) (sync.RemoteClient, error) {
		return nil, sync.ErrUpstreamUnavailable
	})
	manager := sync.NewManager(engine, nil)
	return New(context.Background(), manager, nil)
}

func TestHealthz(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartSyncRejectsBadIDs(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/workspaces/not-a-uuid/accounts/"+uuid.NewString()+"/sync", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/workspaces/"+uuid.NewString()+"/accounts/not-a-uuid/sync", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSyncRejectsBadMaxResults(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/workspaces/"+uuid.NewString()+"/accounts/"+uuid.NewString()+"/sync?maxResults=-5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSyncAccepted(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/workspaces/"+uuid.NewString()+"/accounts/"+uuid.NewString()+"/sync", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestListSyncs(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/syncs", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Running []string `json:"running"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Empty(t, payload.Running)
}
