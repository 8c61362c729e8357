package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

// AuthConfig holds the shared secret of the identity provider.
type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthService verifies access tokens minted by the identity provider. It
// performs no login of its own.
type AuthService struct {
	config AuthConfig
	logger *zap.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(config AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{config: config, logger: logger}
}

// ValidateToken parses and validates a JWT string.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Principal resolves verified claims into the caller identity.
func (s *AuthService) Principal(claims *models.JWTClaims) (models.Principal, error) {
	principal, ok := models.PrincipalFromClaims(claims)
	if !ok {
		return models.Principal{}, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no usable identity")
	}
	return principal, nil
}
