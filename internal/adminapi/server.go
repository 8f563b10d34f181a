// Package adminapi is the kernel's introspection and administration HTTP
// surface: a gin.Engine wired up the way the teacher's cmd/zmux-server
// wires its own API — zap request logging, dev-only CORS, session auth
// backed by Redis, and CSRF-protected mutating endpoints — exposing
// process-table introspection and a hardfault-all control instead of
// channel CRUD.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edirooss/tock-kernel/internal/kernel"
	sessionsredis "github.com/gin-contrib/sessions/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures the admin API server.
type Options struct {
	Addr          string
	Env           string // "dev" enables permissive CORS and non-Secure cookies
	RedisAddr     string
	SessionSecret string
	AdminUser     string
	AdminPass     string
}

// Server owns the gin.Engine and the underlying net/http server.
type Server struct {
	kernel *kernel.Kernel
	log    *zap.Logger

	adminUser string
	adminPass string
	isDev     bool

	engine *gin.Engine
	http   *http.Server
}

// New builds the admin API server. Board bring-up calls this once after
// constructing the Kernel; the returned Server's Run method blocks until
// ctx is cancelled, same convention as mainloop.Loop.Run.
func New(log *zap.Logger, k *kernel.Kernel, opt Options) (*Server, error) {
	isDev := opt.Env == "dev"

	store, err := sessionsredis.NewStoreWithDB(10, "tcp", opt.RedisAddr, "", "", "0", []byte(opt.SessionSecret))
	if err != nil {
		return nil, fmt.Errorf("adminapi: new session store: %w", err)
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   4 * 3600,
		Secure:   !isDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)

	r.Use(gin.Recovery())
	r.Use(secure.New(secure.Config{
		FrameDeny:           true,
		ContentTypeNosniff:  true,
		BrowserXssFilter:    true,
		SSLRedirect:         !isDev,
		STSSeconds:          31536000,
		STSIncludeSubdomains: true,
	}))
	if isDev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-CSRF-Token"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(RequestID())
	r.Use(ZapLogger(log.Named("adminapi")))
	r.Use(sessions.Sessions("tocksid", store))

	s := &Server{
		kernel:    k,
		log:       log.Named("adminapi"),
		adminUser: opt.AdminUser,
		adminPass: opt.AdminPass,
		isDev:     isDev,
		engine:    r,
		http:      &http.Server{Addr: opt.Addr, Handler: r},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine

	r.POST("/api/login", s.handleLogin)
	r.POST("/api/logout", s.handleLogout)

	authed := r.Group("/api", RequireSession, ValidateSessionCSRF)
	authed.GET("/me", s.handleMe)
	authed.GET("/processes", s.handleListProcesses)
	authed.GET("/processes/:idx", s.handleGetProcess)
	authed.GET("/debug/dump", s.handleDump)
	authed.POST("/processes/hardfault-all", s.handleHardfaultAll)
}

// Run starts the HTTP listener and blocks until ctx is cancelled, then
// shuts the server down gracefully — the same errgroup-friendly shape as
// mainloop.Loop.Run.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("adminapi: shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
