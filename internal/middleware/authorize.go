package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		state := CurrentSession(c)
		if !state.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Please log in."})
			return
		}

		if _, ok := roleSet[state.Claims.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "You do not have permission to access this page."})
			return
		}

		c.Next()
	}
}

// RequireCompanyAdmin admits organization admins and system admins.
func RequireCompanyAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := CurrentSession(c)
		if !state.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Please log in."})
			return
		}
		if !state.Claims.IsCompanyAdmin && state.Claims.Role != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "You do not have permission to access this page."})
			return
		}
		c.Next()
	}
}
