package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/logger"
	"auto_blog_package_publisher/publisher"
)

//go:embed web/index.html
var indexHTML []byte

// Generator runs one generation request.
type Generator interface {
	Run(ctx context.Context, req generator.Request) generator.Package
}

// Publisher pushes publish fields to the CMS.
type Publisher interface {
	Publish(ctx context.Context, f publisher.Fields) publisher.Result
}

// Options wires the server. Store and Publisher may be nil: the matching
// endpoints then answer 503.
type Options struct {
	Generator   Generator
	Store       artifact.Store
	Publisher   Publisher
	GraphicsDir string
	// RunTimeout bounds one generation request; zero means 5 minutes.
	RunTimeout time.Duration
	Log        *logger.Logger
}

type Server struct {
	gen         Generator
	store       artifact.Store
	pub         Publisher
	graphicsDir string
	runTimeout  time.Duration
	cache       *packageCache
	log         *logger.Logger
}

// packageCache 保存最近生成的包，供预览与发布按 run_id 取回。
type packageCache struct {
	mu    sync.Mutex
	limit int
	order []string
	pkgs  map[string]generator.Package
}

func newPackageCache(limit int) *packageCache {
	return &packageCache{limit: limit, pkgs: make(map[string]generator.Package)}
}

func (c *packageCache) set(pkg generator.Package) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pkgs[pkg.RunID]; !ok {
		c.order = append(c.order, pkg.RunID)
	}
	c.pkgs[pkg.RunID] = pkg
	for len(c.order) > c.limit {
		delete(c.pkgs, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *packageCache) get(runID string) (generator.Package, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pkg, ok := c.pkgs[runID]
	return pkg, ok
}

func New(opts Options) (*Server, error) {
	if opts.Generator == nil {
		return nil, errors.New("generator required")
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	return &Server{
		gen:         opts.Generator,
		store:       opts.Store,
		pub:         opts.Publisher,
		graphicsDir: opts.GraphicsDir,
		runTimeout:  opts.RunTimeout,
		cache:       newPackageCache(100),
		log:         opts.Log.With("component", "server"),
	}, nil
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	{
		api.POST("/packages", s.handleGenerate)
		api.GET("/packages/:id", s.handlePackage)
		api.GET("/artifacts", s.handleArtifactList)
		api.GET("/artifacts/:id", s.handleArtifact)
		api.POST("/publish", s.handlePublish)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
