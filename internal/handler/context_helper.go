package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendify-api/internal/middleware"
	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/response"
)

// principalFromContext returns the authenticated caller, writing a 401 when
// the request carries none.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return principal, true
}

func invalidBody(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
