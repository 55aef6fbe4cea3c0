package profile

import (
	"ChatPane/controllers"

	"github.com/gin-gonic/gin"
)

// Register registers protected profile routes on supplied router group
// expects the group to already have AuthMiddleware applied
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.GET("/me", controllers.Profile(d))
	g.GET("/profile", controllers.Profile(d))
}
