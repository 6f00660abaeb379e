// Package server exposes read-only run status over HTTP while training is in progress.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trainer/internal/trainer"
)

// StatusSource yields the current run state.
type StatusSource interface {
	Snapshot() trainer.Snapshot
}

type Server struct {
	router *gin.Engine
	status StatusSource
	logger *zap.Logger
	http   *http.Server
}

func NewServer(addr string, status StatusSource, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		status: status,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := s.router.Group("/api/v1")
	api.GET("/training/status", s.getStatus)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server starting", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Status server stopped")
	return nil
}
