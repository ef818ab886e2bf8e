package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/services"
)

// ContextKeyIdentity is where RequireAuth stores the verified caller.
const ContextKeyIdentity = "identity"

// RequireAuth rejects requests without a valid bearer token and stashes
// the verified identity in the gin context.
func RequireAuth(log *logger.Logger, identity services.IdentityService) gin.HandlerFunc {
	authLog := log.With("middleware", "RequireAuth")
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		id, err := identity.VerifyToken(parts[1])
		if err != nil {
			authLog.Warn("Rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Next()
	}
}

// IdentityFrom returns the verified identity set by RequireAuth, if any.
func IdentityFrom(c *gin.Context) (*services.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*services.Identity)
	return id, ok
}
