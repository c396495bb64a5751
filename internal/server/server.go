package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
)

// Server exposes stored workflows over HTTP
type Server struct {
	orch    *orchestrator.Orchestrator
	catalog tools.Catalog
	log     *slog.Logger
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

const shutdownTimeout = 10 * time.Second

func NewServer(
	orch *orchestrator.Orchestrator, catalog tools.Catalog, log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{orch: orch, catalog: catalog, log: log}
}

// SetupRoutes configures and returns the HTTP router
func (s *Server) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return s.log
		}),
	))

	router.GET("/health", s.handleHealth)
	router.GET("/catalog", s.handleCatalog)

	wf := router.Group("/workflows")
	{
		wf.GET("", s.listWorkflows)
		wf.POST("", s.createWorkflow)
		wf.GET("/:id", s.getWorkflow)
		wf.DELETE("/:id", s.deleteWorkflow)
		wf.POST("/:id/execute", s.executeWorkflow)
		wf.POST("/:id/dry-run", s.dryRunWorkflow)
		wf.GET("/:id/executions", s.listExecutions)
		wf.POST("/:id/schedules", s.createSchedule)
	}
	router.GET("/schedules", s.listSchedules)
	router.POST("/recordings", s.learnRecording)

	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), shutdownTimeout,
		)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.orch.Status().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"active":        snap.Active,
		"completed":     snap.Completed,
		"failed":        snap.Failed,
		"lastHeartbeat": snap.LastHeartbeat,
		"uptime":        snap.Uptime,
	})
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog)
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error(), Status: status})
}
