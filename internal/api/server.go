// Package api is the HTTP surface over the sync engine and the write path.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"calplan/internal/accounts"
	"calplan/internal/apperr"
	"calplan/internal/config"
	"calplan/internal/events"
	"calplan/internal/metrics"
	"calplan/internal/store"
	"calplan/internal/syncer"
	"calplan/internal/tasks"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// Server holds the services the handlers call.
type Server struct {
	cfg      *config.Config
	repo     store.Repository
	accounts *accounts.Service
	events   *events.Service
	syncer   *syncer.Orchestrator
	tasks    *tasks.Service
	ping     func(ctx context.Context) error
	logger   *slog.Logger
	now      func() time.Time
}

// Deps wires a Server.
type Deps struct {
	Config   *config.Config
	Repo     store.Repository
	Accounts *accounts.Service
	Events   *events.Service
	Syncer   *syncer.Orchestrator
	Tasks    *tasks.Service
	// Ping checks the database for /health. Optional.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		repo:     d.Repo,
		accounts: d.Accounts,
		events:   d.Events,
		syncer:   d.Syncer,
		tasks:    d.Tasks,
		ping:     d.Ping,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	metrics.Init()

	r := gin.New()
	r.Use(Recovery(s.logger), RequestID(), RequestLogger(s.logger), Instrumentation())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{RequestIDHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	oauth := r.Group("/oauth/google")
	oauth.GET("/authorize", s.authorize)
	oauth.GET("/callback", s.callback)

	authed := r.Group("/")
	authed.Use(CurrentUser(s.repo.GetUser))
	{
		authed.GET("/me", s.me)

		authed.POST("/oauth/google/disconnect", s.disconnect)
		authed.GET("/oauth/google/status", s.status)

		authed.GET("/calendars", s.listCalendars)
		authed.GET("/calendars/:id", s.getCalendar)
		authed.GET("/calendars/:id/ics", s.exportCalendar)
		authed.POST("/calendars/sync", s.syncCalendars)

		authed.GET("/events", s.listEvents)
		authed.GET("/events/:id", s.getEvent)
		authed.POST("/events", s.createEvent)
		authed.PUT("/events/:id", s.updateEvent)
		authed.DELETE("/events/:id", s.deleteEvent)

		authed.POST("/tasks/batch", s.createTaskBatch)
		authed.GET("/tasks/batches", s.listTaskBatches)
		authed.GET("/tasks/batches/:id", s.getTaskBatch)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	if s.ping != nil {
		if err := s.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// bindJSON decodes the body into v. Field rules are checked by the
// services, not here.
func bindJSON(c *gin.Context, v any) error {
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "invalid JSON body")
	}
	return nil
}
