package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SnapshotInfo identifies the artifact generation currently serving queries.
type SnapshotInfo struct {
	RunID    string
	LoadedAt time.Time
}

// Server wraps the gin engine with graceful shutdown and a health endpoint
// that reports database reachability and the active artifact generation.
type Server struct {
	Engine   *gin.Engine
	Addr     string
	db       *sql.DB
	snapshot func() SnapshotInfo
}

func New(addr string, db *sql.DB, mode string, snapshot func() SnapshotInfo) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine:   r,
		Addr:     addr,
		db:       db,
		snapshot: snapshot,
	}

	r.GET("/health", s.healthHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("[Server] Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}

	body := gin.H{
		"status":   "healthy",
		"database": "connected",
	}
	if s.snapshot != nil {
		info := s.snapshot()
		if info.RunID == "" {
			// Reachable but nothing aggregated yet: still healthy, queries
			// answer "no data" until the first run completes.
			body["artifacts"] = "empty"
		} else {
			body["artifacts"] = "loaded"
			body["run_id"] = info.RunID
			body["loaded_at"] = info.LoadedAt
		}
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("[Server] Starting HTTP server", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[Server] Stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] HTTP server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
