package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/model"
)

const claimsKey = "claims"

// Bearer enforces HS256 bearer tokens and stores the claims in the
// request context.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer, TokenUseAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole gates a route group to the listed roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := FromContext(c)
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// FromContext returns the claims stored by Bearer; zero value if absent.
func FromContext(c *gin.Context) Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}
	}
	claims, _ := v.(Claims)
	return claims
}
