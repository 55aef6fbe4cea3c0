package conversation

import (
	"ChatPane/controllers"
	"ChatPane/middleware"

	"github.com/gin-gonic/gin"
)

// Register registers conversation routes (protected)
func Register(g *gin.RouterGroup, d *controllers.Deps, limiter *middleware.RateLimiter) {
	// Basic rate limiting on the endpoints that reach the model
	g.POST("/conversations/send", limiter.Handler(), controllers.SendMessage(d))
	g.POST("/conversations/audio", limiter.Handler(), controllers.SendAudio(d))
	g.POST("/conversations/new", controllers.NewConversation(d))
	g.PUT("/conversations/active", controllers.SetActiveConversation(d))
	g.GET("/conversations", controllers.ListConversations(d))
	g.GET("/conversations/:conversation_id", controllers.GetConversation(d))
	g.DELETE("/conversations/:conversation_id", controllers.DeleteConversation(d))
}
