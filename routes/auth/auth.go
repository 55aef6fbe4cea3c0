package auth

import (
	"ChatPane/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterPublic registers public auth routes: /login
func RegisterPublic(r *gin.Engine, d *controllers.Deps) {
	r.POST("/login", controllers.Login(d))
}

// RegisterProtected registers protected auth routes (e.g. logout)
func RegisterProtected(g *gin.RouterGroup, d *controllers.Deps) {
	g.POST("/logout", controllers.Logout(d))
}
