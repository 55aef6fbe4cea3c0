package websocket

import (
	"ChatPane/controllers"
	"ChatPane/middleware"

	"github.com/gin-gonic/gin"
)

func Register(r *gin.Engine, d *controllers.Deps, limiter *middleware.RateLimiter) {
	r.GET("/ws/chat", limiter.Handler(), controllers.ChatWS(d))
}
