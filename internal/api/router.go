package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/api/handlers"
	"github.com/sentinel-ops/sentinel-backend-go/internal/api/middleware"
	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/websocket"
)

// NewRouter assembles the REST, metrics, and live-feed surfaces
func NewRouter(cfg *config.Config, h *handlers.Handlers, hub *websocket.Hub, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.ErrorHandlingMiddleware(logger))
	r.Use(middleware.ErrorResponseMiddleware(logger))
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", h.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", websocket.HandleWebSocketGin(hub))

	v1 := r.Group("/api/v1")
	{
		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.ListAlerts)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
			alerts.GET("/:id/deliveries", h.ListAlertDeliveries)
		}

		// Separate prefix: /alerts/:id wildcards rule out a static
		// /alerts/security sibling.
		v1.POST("/security-alerts", h.RaiseSecurityAlert)

		auditLogs := v1.Group("/audit-logs")
		{
			auditLogs.GET("", h.ListAuditLogs)
			auditLogs.GET("/verify", h.VerifyAuditChain)
		}

		resources := v1.Group("/resources")
		{
			resources.GET("", h.ListResources)
			resources.POST("", h.CreateResource)
			resources.GET("/:id", h.GetResource)
			resources.PUT("/:id", h.UpdateResource)
			resources.DELETE("/:id", h.DeleteResource)
		}

		products := v1.Group("/products")
		{
			products.GET("", h.ListProducts)
			products.POST("", h.CreateProduct)
			products.GET("/:id", h.GetProduct)
			products.PUT("/:id", h.UpdateProduct)
			products.DELETE("/:id", h.DeleteProduct)
		}

		rules := v1.Group("/rules")
		{
			rules.GET("", h.ListRules)
			rules.POST("/reload", h.ReloadRules)
		}

		v1.POST("/onboarding/discover", h.TriggerDiscovery)
	}

	return r
}
