package routes

import (
	"net/http"

	"ChatPane/controllers"
	"ChatPane/middleware"

	"github.com/gin-gonic/gin"

	authRoutes "ChatPane/routes/auth"
	convRoutes "ChatPane/routes/conversation"
	profileRoutes "ChatPane/routes/profile"
	themeRoutes "ChatPane/routes/theme"
	websocketRoutes "ChatPane/routes/websocket"
)

func RegisterRoutes(r *gin.Engine, d *controllers.Deps, limiter *middleware.RateLimiter) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "chat backend running"})
	})

	websocketRoutes.Register(r, d, limiter)
	authRoutes.RegisterPublic(r, d)
	themeRoutes.Register(r, d)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Tokens))
	authRoutes.RegisterProtected(protected, d)
	profileRoutes.Register(protected, d)
	convRoutes.Register(protected, d, limiter)
}
