package rbac

import (
	"net/http"

	"smarttv-backend/internal/auth"
	"smarttv-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows the request when the caller's role is listed.
// super_admin passes every check; unknown roles never do.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}
		if IsSuperAdmin(id.Role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[id.Role]; !ok || !Known(id.Role) {
			logger.FromGin(c).Info("access denied", "role", id.Role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
