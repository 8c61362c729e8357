package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/logger"
	"github.com/noah-isme/attendify-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing JWT claims.
	ContextUserKey = "currentUser"
	// ContextPrincipalKey is the gin context key storing the resolved caller.
	ContextPrincipalKey = "currentPrincipal"
)

// TokenVerifier validates bearer tokens and resolves the caller behind them.
type TokenVerifier interface {
	ValidateToken(token string) (*models.JWTClaims, error)
	Principal(claims *models.JWTClaims) (models.Principal, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := verifier.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		principal, err := verifier.Principal(claims)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextPrincipalKey, principal)
		logger.SetActor(c, principal.ID, string(principal.Role))
		c.Next()
	}
}

// PrincipalFrom returns the caller resolved by JWT.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}
