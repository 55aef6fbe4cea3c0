package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Profile(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := d.session(c)
		if !ok {
			return
		}
		active, _ := s.Store().Active()
		c.JSON(http.StatusOK, gin.H{
			"id":            s.Identity.ID,
			"name":          s.Identity.Name,
			"email":         s.Identity.Email,
			"avatar_url":    s.Identity.AvatarURL,
			"conversations": s.Store().Len(),
			"active_id":     active.ID,
			"processing":    s.Processing(),
		})
	}
}
