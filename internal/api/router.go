package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creatorhub/copyscan/internal/api/handlers"
	"github.com/creatorhub/copyscan/internal/api/ws"
	"github.com/creatorhub/copyscan/internal/auth"
)

type RouterConfig struct {
	APIKey  string
	Jobs    handlers.JobStore
	Matches handlers.MatchReader
	Audit   handlers.AuditStore // optional
	Actions handlers.ActionApplier
	Checks  map[string]handlers.Check
	Hub     *ws.Hub // optional
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	scanH := handlers.NewScanHandler(cfg.Jobs, cfg.Matches)
	v1.POST("/scans", scanH.Create)
	v1.GET("/scans/:id", scanH.Get)

	matchH := handlers.NewMatchHandler(cfg.Matches, cfg.Audit, cfg.Actions)
	v1.GET("/matches", matchH.List)
	v1.GET("/matches/:id", matchH.Get)
	v1.POST("/matches/:id/actions", matchH.CreateAction)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AddAllowHeaders(auth.HeaderName)
	return c
}
