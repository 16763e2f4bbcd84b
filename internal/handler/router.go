package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/service"
)

// SetupRouter wires all routes and middleware.
func SetupRouter(h *HTTPHandler, auth *service.AuthService, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := r.Group("/api/v1")

	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)

	authed := v1.Group("", AuthMiddleware(auth))

	authed.POST("/permits", h.CreatePermit)
	authed.GET("/permits", h.ListPermits)
	authed.GET("/permits/:id", h.GetPermit)
	authed.DELETE("/permits/:id", h.DeletePermit)

	authed.POST("/permits/:id/approve", h.ApprovePermit)
	authed.POST("/permits/:id/reject", h.RejectPermit)
	authed.POST("/permits/:id/submit", h.SubmitPermit)
	authed.POST("/permits/:id/start", h.StartPermit)
	authed.POST("/permits/:id/extensions", h.RequestExtension)
	authed.POST("/permits/:id/extensions/decision", h.DecideExtension)
	authed.POST("/permits/:id/close", h.ClosePermit)

	authed.GET("/notifications", h.ListNotifications)
	authed.POST("/notifications/:id/read", h.MarkNotificationRead)

	return r
}
