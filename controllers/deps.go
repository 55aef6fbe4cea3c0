package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"ChatPane/middleware"
	"ChatPane/pkg/chat"
	"ChatPane/pkg/identity"
	"ChatPane/pkg/theme"

	"github.com/gin-gonic/gin"
)

// Deps is everything the handlers reach into.
type Deps struct {
	Registry *chat.Registry
	Identity *identity.Provider
	Tokens   *identity.Issuer
	Theme    *theme.Preferences
	Log      *slog.Logger
}

// session resolves the caller's chat session. After a restart the session is
// reopened from storage as long as the token's subject is still signed in.
func (d *Deps) session(c *gin.Context) (*chat.Session, bool) {
	uid := c.GetString(middleware.ContextUserIDKey)
	if s, ok := d.Registry.Get(uid); ok {
		return s, true
	}
	id, ok, err := d.Identity.Current(c.Request.Context())
	if err != nil {
		d.Log.Error("load identity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "storage error"})
		return nil, false
	}
	if !ok || id.ID != uid {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "session expired, please log in again"})
		return nil, false
	}
	s, err := d.Registry.Open(c.Request.Context(), id)
	if err != nil {
		d.Log.Error("open session", "identity", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to load conversations"})
		return nil, false
	}
	return s, true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "a message is already being processed"
	case errors.Is(err, chat.ErrClosed):
		return http.StatusUnauthorized, "session expired, please log in again"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, theme.ErrInvalidTheme):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func abortWithError(c *gin.Context, err error) {
	code, msg := statusFor(err)
	c.AbortWithStatusJSON(code, gin.H{"msg": msg})
}
