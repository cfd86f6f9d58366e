package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	authErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
)

const tokenUserKey = "token_user"

type TokenAuthenticator interface {
	Authenticate(token string) (model.TokenUser, error)
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) (string, error) {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, model.BearerTokenType) || strings.TrimSpace(token) == "" {
		return "", authErrors.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// CurrentUser resolves the bearer token into the caller's claims.
func CurrentUser(auth TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		user, err := auth.Authenticate(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(tokenUserKey, user)
		c.Next()
	}
}

// ActiveUser rejects callers whose token says they were deleted.
func ActiveUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if TokenUser(c).IsDeleted {
			AbortWithError(c, authErrors.ErrInactiveUser)
			return
		}
		c.Next()
	}
}

func Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !TokenUser(c).IsSuperuser {
			AbortWithError(c, authErrors.ErrPermission)
			return
		}
		c.Next()
	}
}

func TokenUser(c *gin.Context) model.TokenUser {
	u, _ := c.Get(tokenUserKey)
	tu, _ := u.(model.TokenUser)
	return tu
}
