package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"proppilot/internal/executor"
	"proppilot/internal/logger"
	"proppilot/internal/store/decisionlog"

	"github.com/gin-gonic/gin"
)

const defaultDecisionLimit = 50

// Server exposes the read-only status API: decision history, open
// positions and account state. It never mutates engine state.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the status server dependencies.
type ServerConfig struct {
	Addr string
	Logs *decisionlog.Store
	Exec *executor.Paper
}

// NewServer builds the status HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logs == nil || cfg.Exec == nil {
		return nil, errors.New("status http server requires decision log and executor")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9983"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/decisions", listDecisions(cfg.Logs))
	api.GET("/decisions/:id", getDecision(cfg.Logs))
	api.GET("/positions", listPositions(cfg.Exec))
	api.GET("/account", getAccount(cfg.Exec))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func listDecisions(logs *decisionlog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultDecisionLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		symbol := strings.TrimSpace(c.Query("symbol"))

		var (
			recs []decisionlog.Record
			err  error
		)
		if symbol != "" {
			recs, err = logs.BySymbol(c.Request.Context(), symbol, limit)
		} else {
			recs, err = logs.Recent(c.Request.Context(), limit)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
	}
}

func getDecision(logs *decisionlog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, found, err := logs.ByTraceID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func listPositions(exec *executor.Paper) gin.HandlerFunc {
	return func(c *gin.Context) {
		positions := exec.Positions()
		c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
	}
}

func getAccount(exec *executor.Paper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, exec.Account())
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
