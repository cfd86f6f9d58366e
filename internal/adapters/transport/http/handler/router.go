package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	mw "github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

type RouterConfig struct {
	APIPrefix        string
	AllowedOrigins   []string
	AllowCredentials bool
}

// NewRouter wires the middleware chain and every route. gatherer may be nil,
// in which case /metrics is not mounted.
func NewRouter(cfg RouterConfig, h *Handler, sessions *session.Manager, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(mw.RequestID())
	router.Use(mw.RequestLogger(log))
	router.Use(mw.Metrics(h.metrics))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{
				"Origin", "Content-Type", "Accept",
				"Authorization",
				"X-Requested-With", mw.RequestIDHeader,
			},
			ExposeHeaders:    []string{"Content-Length", mw.RequestIDHeader},
			AllowCredentials: cfg.AllowCredentials,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", h.Healthz)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := router.Group(prefix)
	api.GET("/ping", h.Ping)

	db := api.Group("", mw.DBSession(sessions, log))

	auth := db.Group("/auth")
	auth.POST("/signup", h.Signup)
	auth.POST("/token", h.Token)
	auth.POST("/logout", h.Logout)

	users := db.Group("/users")
	users.GET("", h.ListUsers)
	users.GET("/:id", h.GetUser)

	me := users.Group("/me", mw.CurrentUser(h.auth), mw.ActiveUser())
	me.GET("", h.Me)
	me.PATCH("", h.UpdateMe)

	admin := users.Group("", mw.CurrentUser(h.auth), mw.ActiveUser(), mw.Admin())
	admin.PATCH("/:id", h.UpdateUser)
	admin.DELETE("/:id", h.DeleteUser)

	return router
}
