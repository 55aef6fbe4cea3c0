package controllers

import (
	"net/http"

	"ChatPane/middleware"

	"github.com/gin-gonic/gin"
)

// Login signs in the mock identity. Credentials in the body, if any, are
// ignored.
func Login(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user, err := d.Identity.Login(ctx)
		if err != nil {
			d.Log.Error("login", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to sign in"})
			return
		}
		if _, err := d.Registry.Open(ctx, user); err != nil {
			d.Log.Error("open session", "identity", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to load conversations"})
			return
		}
		tokenStr, _, err := d.Tokens.Issue(user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": tokenStr, "user": user})
	}
}

// Logout revokes the presented token and drops the in-memory conversations.
// Persisted conversations stay for the next login.
func Logout(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := middleware.Claims(c); ok {
			d.Tokens.Revoke(claims)
		}
		uid := c.GetString(middleware.ContextUserIDKey)
		d.Registry.Close(uid)
		if err := d.Identity.Logout(c.Request.Context()); err != nil {
			d.Log.Warn("forget identity", "identity", uid, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
