package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.Use(APIKeyAuthMiddleware(h.cfg, h.logger))
	{
		reports := api.Group("/reports")
		{
			reports.POST("", h.createReport)
			reports.GET("", h.listReports)
			reports.GET("/nearby", h.nearbyReports)
			reports.GET("/mine", h.myReports)
			reports.GET("/:id", h.getReport)

			dispatch := reports.Group("")
			dispatch.Use(OperatorOnlyMiddleware(h.operatorPolicy, h.logger))
			{
				dispatch.POST("/:id/claim", h.claimReport)
				dispatch.POST("/:id/resolve", h.resolveReport)
			}
		}

		routes := api.Group("/routes")
		routes.Use(OperatorOnlyMiddleware(h.operatorPolicy, h.logger))
		{
			routes.POST("/plan", h.planRoute)
		}

		api.GET("/events", h.streamEvents)
	}

	router.GET("/system/health", h.healthCheck)
}
