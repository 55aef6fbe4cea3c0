package theme

import (
	"ChatPane/controllers"

	"github.com/gin-gonic/gin"
)

// Register registers the theme routes. The preference is global, so they are
// public.
func Register(r *gin.Engine, d *controllers.Deps) {
	r.GET("/theme", controllers.GetTheme(d))
	r.PUT("/theme", controllers.SetTheme(d))
	r.POST("/theme/toggle", controllers.ToggleTheme(d))
}
