// Package api exposes the index over HTTP for the desktop front end.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fsindex/internal/metrics"
	"fsindex/internal/search"
	"fsindex/internal/tags"
	"fsindex/internal/volume"
)

const shutdownTimeout = 5 * time.Second

// Volumes lists volumes and rebuilds them on request.
type Volumes interface {
	List() ([]volume.Volume, error)
	Rescan(ctx context.Context, mount string) error
	Ready() bool
}

// Searcher answers search requests.
type Searcher interface {
	Search(req search.Request) ([]search.Result, bool)
}

// Invalidator drops a single path from the cache.
type Invalidator interface {
	Invalidate(path string) error
}

// Tags is the tag cache as seen by the handlers.
type Tags interface {
	Tags() []string
	AddTag(tag string)
	Get(tag string) ([]tags.TagDoc, bool)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Volumes     Volumes
	Searcher    Searcher
	Invalidator Invalidator
	Tags        Tags
}

// Server wraps the router and its dependencies.
type Server struct {
	router *gin.Engine
	deps   Deps
	logger *zap.Logger
}

// NewServer builds the router. allowOrigins feeds the CORS middleware.
func NewServer(deps Deps, allowOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	s := &Server{
		router: gin.New(),
		deps:   deps,
		logger: logger.Named("api"),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))
	s.router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin"},
		MaxAge:       12 * time.Hour,
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	h := &handlers{deps: s.deps, logger: s.logger}

	s.router.GET("/healthz", h.health)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router.GET("/volumes", h.listVolumes)
	s.router.POST("/rescan", h.rescan)

	s.router.GET("/search", h.search)
	s.router.POST("/invalidate", h.invalidate)

	s.router.GET("/tags", h.listTags)
	s.router.POST("/tags", h.addTag)
	s.router.GET("/tags/:tag", h.getTag)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
