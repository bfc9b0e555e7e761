// Package http wires the gin engine, routes and server lifecycle.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/interfaces/http/handlers"
	apperrors "github.com/sentineliq/riskd/pkg/errors"
	"github.com/sentineliq/riskd/pkg/logger"
)

// Router owns the gin engine and the HTTP server.
type Router struct {
	engine        *gin.Engine
	config        *config.Config
	logger        logger.Logger
	riskHandler   *handlers.RiskHandler
	healthHandler *handlers.HealthHandler
	middleware    *handlers.Middleware
	server        *http.Server
}

// NewRouter creates a new Router.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	riskHandler *handlers.RiskHandler,
	healthHandler *handlers.HealthHandler,
	middleware *handlers.Middleware,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:        gin.New(),
		config:        cfg,
		logger:        log.WithComponent("router"),
		riskHandler:   riskHandler,
		healthHandler: healthHandler,
		middleware:    middleware,
	}
}

// SetupRoutes registers middleware and routes.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.middleware.RequestID())
	r.engine.Use(r.middleware.Logger())

	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	r.engine.GET("/healthz", r.healthHandler.Healthz)
	r.engine.GET("/readyz", r.healthHandler.Readyz)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.config.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/v1")
	{
		v1.POST("/events:evaluate", r.riskHandler.Evaluate)
		v1.GET("/ledger/verify", r.riskHandler.VerifyLedger)
		v1.GET("/users/:user_id/ua-profile", r.riskHandler.UAProfile)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperrors.ToErrorResponse(apperrors.ErrNotFound("route")))
	})
}

// Start runs the HTTP server until the listener fails or Stop is called.
func (r *Router) Start() error {
	r.SetupRoutes()

	r.server = &http.Server{
		Addr:           r.config.Server.Addr(),
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	r.logger.Info(context.Background(), "starting http server",
		logger.String("addr", r.server.Addr))

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
