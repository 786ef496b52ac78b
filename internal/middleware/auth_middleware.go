package middleware

import (
	"net/http"
	"strings"

	"medportal/internal/identity"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(service *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := service.ParseAccessToken(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithWallet(c.Request.Context(), claims.Wallet, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects sessions of any other role. It must run after
// AuthMiddleware.
func RequireRole(role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := services.RoleFromContext(c.Request.Context())
		if !ok || got != role {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("only "+string(role)+" wallets may do this", "FORBIDDEN"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
