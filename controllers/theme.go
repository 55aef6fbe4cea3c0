package controllers

import (
	"net/http"

	"ChatPane/models"

	"github.com/gin-gonic/gin"
)

func GetTheme(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := d.Theme.Get(c.Request.Context())
		if err != nil {
			d.Log.Warn("load theme", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"theme": t})
	}
}

func SetTheme(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Theme models.Theme `json:"theme"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		if err := d.Theme.Set(c.Request.Context(), body.Theme); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"theme": body.Theme})
	}
}

func ToggleTheme(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := d.Theme.Toggle(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"theme": t})
	}
}
