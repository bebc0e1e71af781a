// Package server exposes the interactive entry points over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// Authenticator maps a bearer access token to the local user owning it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.User, error)
}

// SyncService is the interactive sync surface.
type SyncService interface {
	Sync(ctx context.Context, callerID, projectID, accessToken string) (model.SyncResult, error)
	ListTaskLists(ctx context.Context, callerID, accessToken string) ([]*tasks.TaskList, error)
	LinkProject(ctx context.Context, callerID, projectID, accessToken, listID string) (model.Project, error)
	UnlinkProject(ctx context.Context, callerID, projectID, accessToken string, deleteList bool) error
	CreateTask(ctx context.Context, callerID, projectID, accessToken string, patch model.TaskPatch) (model.Task, error)
	UpdateTask(ctx context.Context, callerID, taskID, accessToken string, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, callerID, taskID, accessToken string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	log    *slog.Logger
	auth   Authenticator
	svc    SyncService
	db     Pinger
	router *gin.Engine
}

func NewServer(log *slog.Logger, auth Authenticator, svc SyncService, db Pinger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		log:    log,
		auth:   auth,
		svc:    svc,
		db:     db,
		router: router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/", s.authenticate)
	{
		api.GET("/tasklists", s.handleListTaskLists)
		api.POST("/projects/:id/sync", s.handleSync)
		api.POST("/projects/:id/link", s.handleLink)
		api.DELETE("/projects/:id/link", s.handleUnlink)
		api.POST("/projects/:id/tasks", s.handleCreateTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
