// Package mockapi is an in-memory implementation of the SceneBoard REST
// API. It backs the client's end-to-end tests and the local dev server.
package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/auth"
	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/middleware"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/storage"
)

type Options struct {
	Config config.ServerConfig
	// Blobs stores uploaded media. Defaults to an in-memory store.
	Blobs  storage.Blobs
	Logger logrus.FieldLogger
	// Paginate wraps list responses as {"count", "results"}.
	Paginate bool
}

// Server 内存 API 服务
type Server struct {
	cfg      config.ServerConfig
	auth     *auth.Service
	users    *accounts
	blobs    storage.Blobs
	logger   logrus.FieldLogger
	paginate bool
	router   *gin.Engine

	mu    sync.Mutex
	data  *state
	fault []fault

	countMu sync.Mutex
	counts  map[string]int
}

type fault struct {
	method string
	path   string
	status int
	body   any
}

// DefaultConfig is a server config suitable for tests.
func DefaultConfig() config.ServerConfig {
	return config.ServerConfig{
		Mode: "test",
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			TokenExpiry:   5 * time.Minute,
			RefreshExpiry: time.Hour,
		},
		Quota: config.QuotaConfig{
			MaxProjects:        10,
			MaxBoxesPerProject: 50,
			MaxAssetsPerBox:    100,
		},
	}
}

func New(opts Options) *Server {
	if opts.Blobs == nil {
		opts.Blobs = storage.NewMemory()
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	users := newAccounts()
	s := &Server{
		cfg:      opts.Config,
		auth:     auth.NewService(users, opts.Config),
		users:    users,
		blobs:    opts.Blobs,
		logger:   opts.Logger,
		paginate: opts.Paginate,
		data:     newState(),
		counts:   make(map[string]int),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Auth exposes the token service, e.g. to mint pairs in tests.
func (s *Server) Auth() *auth.Service { return s.auth }

// ========================================
// Routing
// ========================================

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(s.cfg.GetGINMode())
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(s.logger))
	router.Use(middleware.LoggerMiddleware(s.logger))
	if s.cfg.EnableCORS {
		router.Use(middleware.CORSMiddleware())
	}
	router.Use(s.countRequests())
	router.Use(s.injectFaults())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register/", s.handleRegister)
		authGroup.POST("/login/", s.handleLogin)
		authGroup.POST("/token/refresh/", s.handleRefresh)
		authGroup.GET("/me/", middleware.AuthMiddleware(s.auth), s.handleGetMe)
	}

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.auth))
	{
		api.GET("/projects/", s.handleListProjects)
		api.POST("/projects/", s.handleCreateProject)
		api.GET("/projects/:id/", s.handleGetProject)
		api.PATCH("/projects/:id/", s.handleUpdateProject)
		api.DELETE("/projects/:id/", s.handleDeleteProject)

		api.GET("/boxes/", s.handleListBoxes)
		api.POST("/boxes/", s.handleCreateBox)
		api.POST("/boxes/reorder/", s.handleReorderBoxes)
		api.GET("/boxes/:id/", s.handleGetBox)
		api.PATCH("/boxes/:id/", s.handleUpdateBox)
		api.DELETE("/boxes/:id/", s.handleDeleteBox)
		api.POST("/boxes/:id/set_headliner/", s.handleSetHeadliner)
		api.POST("/boxes/:id/upload/", s.handleUpload)

		api.GET("/assets/", s.handleListAssets)
		api.POST("/assets/reorder/", s.handleReorderAssets)
		api.GET("/assets/:id/", s.handleGetAsset)
		api.PATCH("/assets/:id/", s.handleUpdateAsset)
		api.DELETE("/assets/:id/", s.handleDeleteAsset)
	}

	router.GET("/media/*key", s.handleMedia)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	})

	return router
}

// ========================================
// Test controls
// ========================================

// FailNext makes the next request matching method and path answer with
// status and body instead of reaching its handler. A string body is sent
// verbatim. Status 0 hangs up the connection without a response.
func (s *Server) FailNext(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = append(s.fault, fault{method: method, path: path, status: status, body: body})
}

// ExpireTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireTokens() { s.auth.ExpireAccessTokens() }

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() { s.auth.RevokeRefreshTokens() }

// Count returns how many requests reached method and path.
func (s *Server) Count(method, path string) int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.counts[method+" "+path]
}

// Total returns the number of requests served.
func (s *Server) Total() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	n := 0
	for _, v := range s.counts {
		n += v
	}
	return n
}

func (s *Server) ResetCounts() {
	s.countMu.Lock()
	s.counts = make(map[string]int)
	s.countMu.Unlock()
}

// Seed registers an account directly and returns it.
func (s *Server) Seed(username, password string) (*auth.Account, error) {
	return s.auth.Register(models.UserCreateRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        password,
		PasswordConfirm: password,
	})
}

// SeedProject creates a project owned by userID without going through HTTP.
func (s *Server) SeedProject(userID int64, name string, aspect models.AspectRatio) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.insertProject(userID, name, aspect)
	return s.data.projectView(row)
}

func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.countMu.Lock()
		s.counts[c.Request.Method+" "+c.Request.URL.Path]++
		s.countMu.Unlock()
		c.Next()
	}
}

func (s *Server) injectFaults() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.takeFault(c.Request.Method, c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}

		s.logger.WithFields(logrus.Fields{
			"method": f.method,
			"path":   f.path,
			"status": f.status,
		}).Debug("injected fault")

		if f.status == 0 {
			hangUp(c)
			return
		}
		switch body := f.body.(type) {
		case nil:
			c.AbortWithStatusJSON(f.status, gin.H{"detail": http.StatusText(f.status)})
		case string:
			c.Data(f.status, "application/json", []byte(body))
			c.Abort()
		default:
			c.AbortWithStatusJSON(f.status, body)
		}
	}
}

func (s *Server) takeFault(method, path string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.fault {
		if f.method == method && f.path == path {
			s.fault = append(s.fault[:i], s.fault[i+1:]...)
			return f, true
		}
	}
	return fault{}, false
}

func hangUp(c *gin.Context) {
	c.Abort()
	conn, _, err := c.Writer.Hijack()
	if err != nil {
		c.Status(http.StatusBadGateway)
		return
	}
	conn.Close()
}

// ========================================
// Response helpers
// ========================================

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

func detail(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, gin.H{"detail": fmt.Sprintf(format, args...)})
}

func fieldError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{field: []string{msg}})
}

// bindJSON decodes the request body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		detail(c, http.StatusBadRequest, "JSON parse error - %s", err.Error())
		return false
	}
	return true
}

func (s *Server) list(c *gin.Context, items any, n int) {
	if s.paginate {
		c.JSON(http.StatusOK, gin.H{"count": n, "next": nil, "previous": nil, "results": items})
		return
	}
	c.JSON(http.StatusOK, items)
}

// publicURL is the base for file_url values.
func (s *Server) publicURL(c *gin.Context) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
