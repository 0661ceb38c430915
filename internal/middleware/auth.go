package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/propdesk/agent-console/internal/auth"
	"github.com/propdesk/agent-console/pkg/errors"
	"github.com/propdesk/agent-console/pkg/response"
)

const (
	CtxClaimsKey      = "authClaims"
	CtxExecutiveIDKey = "executiveID"
)

// Auth enforces session token authentication using the supplied JWT service.
// Websocket upgrades cannot set headers from the browser, so a token query
// parameter is accepted as a fallback.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateSessionToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxExecutiveIDKey, claims.ExecutiveID)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}
