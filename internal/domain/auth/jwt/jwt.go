package jwt

import (
	"time"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of both access and refresh tokens.
type Claims struct {
	UserID      int64           `json:"id"`
	Username    string          `json:"username"`
	IsSuperuser bool            `json:"is_superuser"`
	IsDeleted   bool            `json:"is_deleted"`
	TokenType   model.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Issue(user model.TokenUser, typ model.TokenType, ttl time.Duration) (string, error)
	// IssuePair mints a fresh access token, and a fresh refresh token only
	// when existingRefresh is empty.
	IssuePair(user model.TokenUser, existingRefresh string) (model.TokenPair, error)
	// Verify checks signature, type (when expected is not empty), user claims
	// and expiry, in that order.
	Verify(token string, expected model.TokenType) (model.TokenUser, error)
}
