package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/config"
	"github.com/hipper-gif/meal-delivery/internal/metrics"
	"github.com/hipper-gif/meal-delivery/internal/middleware"
	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/service"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type OrganizationReader interface {
	GetByID(ctx context.Context, id string) (models.Organization, error)
}

type Deps struct {
	Auth          *service.AuthService
	Signup        *service.AccountProvisioner
	Sessions      *session.Manager
	Organizations OrganizationReader
	DB            Pinger
	Cache         redis.UniversalClient
	Metrics       *metrics.Metrics
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	auth          *service.AuthService
	signup        *service.AccountProvisioner
	sessions      *session.Manager
	organizations OrganizationReader
	db            Pinger
	cache         redis.UniversalClient
	metrics       *metrics.Metrics
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{
		log:           log,
		cfg:           cfg,
		auth:          deps.Auth,
		signup:        deps.Signup,
		sessions:      deps.Sessions,
		organizations: deps.Organizations,
		db:            deps.DB,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
	}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	web := router.Group("")
	web.Use(middleware.Session(h.sessions, h.cfg.Session.CookieName, h.log))
	{
		web.POST("/login", h.Login)
		web.POST("/login/remember", h.Remember)
		web.POST("/logout", h.Logout)
		web.POST("/signup", h.Signup)

		web.GET("/session", middleware.RequireSession(), h.CurrentSession)
		web.GET("/organization", middleware.RequireCompanyAdmin(), h.CurrentOrganization)
	}
}
