// Package server exposes the study assistant over HTTP: an HTML page plus a
// small JSON/SSE API used by it.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/helper"
	"study-rag/internal/rag"
	"study-rag/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	sessionTTL           = 24 * time.Hour
	sessionSweepInterval = 10 * time.Minute
)

type Server struct {
	cfg       *config.Config
	assistant *rag.Assistant
	sessions  *session.Manager
	engine    *gin.Engine
}

func New(cfg *config.Config, assistant *rag.Assistant, sessions *session.Manager) *Server {
	gin.SetMode(cfg.Server.Mode)

	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())
	engine.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	engine.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	s := &Server{
		cfg:       cfg,
		assistant: assistant,
		sessions:  sessions,
		engine:    engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)
	s.engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := s.engine.Group("/api")
	{
		api.POST("/upload", s.upload)
		api.POST("/ask", s.ask)
		api.POST("/ask/stream", s.askStream)
		api.POST("/clear", s.clear)
		api.GET("/export", s.export)
		api.GET("/status", s.status)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.engine,
	}

	go s.sessions.ExpireIdle(ctx, sessionSweepInterval, sessionTTL)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Server.Addr).Msg("Study assistant listening")
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

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// session returns the caller's session, creating one (and its cookie) if needed.
func (s *Server) session(c *gin.Context) *session.Session {
	if id, err := c.Cookie(s.cfg.Server.SessionCookie); err == nil && helper.IsUUID(id) {
		if sess, ok := s.sessions.Get(id); ok {
			return sess
		}
	}
	sess := s.sessions.New()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.Server.SessionCookie, sess.ID, int(sessionTTL.Seconds()), "/", "", false, true)
	return sess
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request")
	}
}
