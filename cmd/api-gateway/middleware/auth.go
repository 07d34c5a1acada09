package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/rs/zerolog/log"
)

const tokenKey = "token"

// ExtractToken reads the token from an Authorization header value. Both the
// bare token and "Bearer <token>" are accepted.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// TokenMiddleware stores the request's token in the gin context. Whether the
// token is any good is decided by the registry operation itself.
func TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c.GetHeader("Authorization")); token != "" {
			c.Set(tokenKey, token)
		}
		c.Next()
	}
}

// GetTokenFromContext returns the token stored by TokenMiddleware, or ""
func GetTokenFromContext(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// RequireAdmin rejects requests whose token is not an admin token before the
// request body is read
func RequireAdmin(authorizer AdminAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c.GetHeader("Authorization"))
		if !authorizer.AuthorizeAdmin(token) {
			log.Warn().
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("admin request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Error: "unauthorized",
				Code:  "unauthorized",
			})
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}
