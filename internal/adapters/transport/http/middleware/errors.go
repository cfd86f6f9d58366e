package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	authErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
)

// StatusOf maps a domain error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case authErrors.IsValidation(err):
		return http.StatusBadRequest
	case authErrors.IsConflict(err):
		return http.StatusConflict
	case authErrors.IsAuthentication(err):
		return http.StatusBadRequest
	case authErrors.IsTokenError(err):
		return http.StatusUnauthorized
	case authErrors.IsPermission(err):
		return http.StatusForbidden
	case authErrors.IsNotFound(err):
		return http.StatusNotFound
	case authErrors.IsLogout(err), authErrors.IsInactiveUser(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError records err on the context and writes {"detail": ...}.
// Internal failures never leak their message.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := StatusOf(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal server error"
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// AbortWithBindError answers malformed or incomplete input with 422.
func AbortWithBindError(c *gin.Context, err error) {
	_ = c.Error(errors.Join(authErrors.ErrValidation, err)).SetType(gin.ErrorTypeBind)
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
}
