package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loftcrm/mailsync/internal/auth"
	"github.com/loftcrm/mailsync/internal/sync"
)

// Server exposes the sync trigger surface over HTTP. Sync runs are meant
// to be kicked off by a scheduler; the endpoints accept a run request and
// report in-flight runs.
type Server struct {
	manager  *sync.Manager
	verifier *auth.JWTVerifier // nil disables auth (local development)
	baseCtx  context.Context
	srv      *http.Server
}

func New(baseCtx context.Context, manager *sync.Manager, verifier *auth.JWTVerifier) *Server {
	s := &Server{manager: manager, verifier: verifier, baseCtx: baseCtx}

	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := r.Group("/")
	if verifier != nil {
		authorized.Use(s.authMiddleware())
	}
	authorized.POST("/workspaces/:workspaceID/accounts/:accountID/sync", s.startSync)
	authorized.GET("/syncs", s.listSyncs)

	s.srv = &http.Server{Handler: r}
	return s
}

func (s *Server) startSync(c *gin.Context) {
	workspaceID, err := uuid.Parse(c.Param("workspaceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}
	accountID, err := uuid.Parse(c.Param("accountID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	maxResults := int64(0)
	if raw := c.Query("maxResults"); raw != "" {
		maxResults, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || maxResults < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid maxResults"})
			return
		}
	}

	// Runs outlive the request; tie them to the server lifetime instead.
	if err := s.manager.StartSync(s.baseCtx, workspaceID, accountID, maxResults); err != nil {
		if errors.Is(err, sync.ErrSyncAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workspace_id": workspaceID,
		"account_id":   accountID,
	})
}

func (s *Server) listSyncs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": s.manager.Running()})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.verifier.UserFromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set("user_id", user.ID)
		c.Next()
	}
}

func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
