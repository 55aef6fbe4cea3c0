package middleware

import (
	"errors"
	"net/http"
	"strings"

	"ChatPane/pkg/identity"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey = "current_user_id"
	ContextClaimsKey = "current_claims"
)

// AuthMiddleware accepts "Authorization: Bearer <jwt>" issued by tokens.
func AuthMiddleware(tokens *identity.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}
		if !Authenticate(c, tokens, parts[1]) {
			return
		}
		c.Next()
	}
}

// Authenticate verifies tokenStr and stores its claims on the context. It
// aborts with 401 and returns false when the token is unusable.
func Authenticate(c *gin.Context, tokens *identity.Issuer, tokenStr string) bool {
	claims, err := tokens.Parse(tokenStr)
	if errors.Is(err, identity.ErrRevoked) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token has been revoked (logout)"})
		return false
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
		return false
	}
	c.Set(ContextUserIDKey, claims.Subject)
	c.Set(ContextClaimsKey, claims)
	return true
}

// Claims returns the claims stored by Authenticate.
func Claims(c *gin.Context) (identity.Claims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return identity.Claims{}, false
	}
	claims, ok := v.(identity.Claims)
	return claims, ok
}
