package jwt

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	domainjwt "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/config"
)

type JwtServiceImpl struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTService(secret, algorithm string, accessTTL, refreshTTL time.Duration) (*JwtServiceImpl, error) {
	if secret == "" {
		return nil, customErrors.NewValidation("empty token secret")
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, customErrors.NewValidation("unsupported token algorithm " + algorithm)
	}

	return &JwtServiceImpl{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

func NewFromConfig(cfg *config.Config) (*JwtServiceImpl, error) {
	return NewJWTService(cfg.SecretKey, cfg.JWTAlgorithm, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// WithClock swaps the time source used for iat, exp and expiry checks.
func (j *JwtServiceImpl) WithClock(now func() time.Time) *JwtServiceImpl {
	cp := *j
	cp.now = now
	return &cp
}

func (j *JwtServiceImpl) Issue(user model.TokenUser, typ model.TokenType, ttl time.Duration) (string, error) {
	now := j.now()

	claims := domainjwt.Claims{
		UserID:      user.ID,
		Username:    user.Username,
		IsSuperuser: user.IsSuperuser,
		IsDeleted:   user.IsDeleted,
		TokenType:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(j.secret)
	if err != nil {
		return "", customErrors.WrapInternal(err, "sign "+string(typ)+" token")
	}
	return signed, nil
}

func (j *JwtServiceImpl) IssuePair(user model.TokenUser, existingRefresh string) (model.TokenPair, error) {
	at, err := j.Issue(user, model.AccessToken, j.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	rt := existingRefresh
	if rt == "" {
		if rt, err = j.Issue(user, model.RefreshToken, j.refreshTTL); err != nil {
			return model.TokenPair{}, err
		}
	}

	return model.TokenPair{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    model.BearerTokenType,
	}, nil
}

func (j *JwtServiceImpl) Verify(raw string, expected model.TokenType) (model.TokenUser, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	}); err != nil {
		return model.TokenUser{}, customErrors.ErrInvalidToken
	}

	if expected != "" {
		typ, _ := claims["token_type"].(string)
		if typ != string(expected) {
			return model.TokenUser{}, customErrors.ErrTokenType
		}
	}

	user, err := userFromClaims(claims)
	if err != nil {
		return model.TokenUser{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !j.now().Before(exp.Time) {
		return model.TokenUser{}, customErrors.ErrTokenExpired
	}

	return user, nil
}

func userFromClaims(claims jwt.MapClaims) (model.TokenUser, error) {
	var u model.TokenUser
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &u,
		ErrorUnset: true,
	})
	if err != nil {
		return model.TokenUser{}, customErrors.WrapInternal(err, "claims decoder")
	}
	if err := dec.Decode(map[string]interface{}(claims)); err != nil {
		return model.TokenUser{}, customErrors.ErrNoUserInToken
	}
	if u.ID <= 0 || u.Username == "" {
		return model.TokenUser{}, customErrors.ErrNoUserInToken
	}
	return u, nil
}
