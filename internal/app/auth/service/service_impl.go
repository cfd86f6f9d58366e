package service

import (
	"context"
	"crypto/subtle"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	repo "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
)

const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Service drives the user through anonymous -> authenticated -> refreshed ->
// logged out. Every state change commits the unit of work it was given.
type Service interface {
	Signup(ctx context.Context, uow repo.UnitOfWork, in dto.SignupDTO) (model.PublicUser, error)
	Login(ctx context.Context, uow repo.UnitOfWork, in dto.TokenDTO) (model.TokenPair, error)
	Logout(ctx context.Context, uow repo.UnitOfWork, token string) error
	// Authenticate resolves the bearer of any token type to its claims.
	Authenticate(token string) (model.TokenUser, error)
}

type authService struct {
	hasher PasswordHasher
	tokens jwt.TokenService
	v      *validator.Validate
	log    *zap.Logger
}

func New(h PasswordHasher, ts jwt.TokenService, v *validator.Validate, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{hasher: h, tokens: ts, v: v, log: log}
}

func (a *authService) Signup(ctx context.Context, uow repo.UnitOfWork, in dto.SignupDTO) (model.PublicUser, error) {
	in.Username = dto.NormalizeUsername(in.Username)
	in.Email = dto.NormalizeEmail(in.Email)
	if err := a.v.Struct(in); err != nil {
		return model.PublicUser{}, customErrors.NewValidation(err.Error())
	}

	users := uow.Users()

	if err := absent(users.GetUserByUsername(ctx, in.Username)); err != nil {
		return model.PublicUser{}, conflictOr(err, "username")
	}
	if in.Email != "" {
		if err := absent(users.GetUserByEmail(ctx, in.Email)); err != nil {
			return model.PublicUser{}, conflictOr(err, "email")
		}
	}
	if in.Password != in.ConfirmationPassword {
		return model.PublicUser{}, customErrors.NewValidation("passwords do not match")
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return model.PublicUser{}, err
	}

	user := &model.User{
		Username:       in.Username,
		HashedPassword: hash,
		Email:          optional(in.Email),
		Fullname:       optional(in.Fullname),
		State:          model.StateActive,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return model.PublicUser{}, err
	}
	if err := uow.Commit(); err != nil {
		return model.PublicUser{}, customErrors.WrapInternal(err, "Signup commit")
	}

	a.log.Info("user signed up", zap.Int64("user_id", user.ID))
	return user.Public(), nil
}

func (a *authService) Login(ctx context.Context, uow repo.UnitOfWork, in dto.TokenDTO) (model.TokenPair, error) {
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewValidation(err.Error())
	}

	var (
		user     model.User
		existing string
		err      error
	)
	switch in.GrantType {
	case GrantRefreshToken:
		user, err = a.authenticateRefresh(ctx, uow.Users(), in.RefreshToken)
		existing = in.RefreshToken
	default:
		user, err = a.authenticatePassword(ctx, uow.Users(), in.Username, in.Password)
	}
	if err != nil {
		a.log.Info("login rejected", zap.String("grant_type", in.GrantType), zap.Error(err))
		return model.TokenPair{}, err
	}

	pair, err := a.tokens.IssuePair(user.TokenUser(), existing)
	if err != nil {
		return model.TokenPair{}, err
	}

	if _, err := uow.Users().UpdateUser(ctx, user.ID, repo.UserUpdate{RefreshToken: &pair.RefreshToken}); err != nil {
		return model.TokenPair{}, err
	}
	if err := uow.Commit(); err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "Login commit")
	}

	a.log.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("grant_type", in.GrantType))
	return pair, nil
}

func (a *authService) authenticatePassword(ctx context.Context, users repo.UserRepo, username, password string) (model.User, error) {
	user, err := users.GetUserByUsername(ctx, dto.NormalizeUsername(username))
	switch {
	case customErrors.IsNotFound(err):
		return model.User{}, customErrors.ErrAuthentication
	case err != nil:
		return model.User{}, err
	}

	if !a.hasher.Verify(password, user.HashedPassword) {
		return model.User{}, customErrors.ErrAuthentication
	}
	return user, nil
}

// authenticateRefresh accepts only the refresh token currently stored for the
// user; a token nulled by logout or replaced by a newer login is rejected.
func (a *authService) authenticateRefresh(ctx context.Context, users repo.UserRepo, token string) (model.User, error) {
	claims, err := a.tokens.Verify(token, model.RefreshToken)
	if err != nil {
		return model.User{}, err
	}

	user, err := users.GetUserByUsername(ctx, claims.Username)
	switch {
	case customErrors.IsNotFound(err):
		return model.User{}, customErrors.ErrAuthentication
	case err != nil:
		return model.User{}, err
	}

	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(token)) != 1 {
		return model.User{}, customErrors.ErrAuthentication
	}
	return user, nil
}

func (a *authService) Logout(ctx context.Context, uow repo.UnitOfWork, token string) error {
	claims, err := a.tokens.Verify(token, "")
	if err != nil {
		return err
	}

	users := uow.Users()
	user, err := users.GetUserByUsername(ctx, claims.Username)
	switch {
	case customErrors.IsNotFound(err):
		return customErrors.ErrLogout
	case err != nil:
		return err
	}
	if user.RefreshToken == nil {
		return customErrors.ErrLogout
	}

	if _, err := users.UpdateUser(ctx, user.ID, repo.UserUpdate{ClearRefreshToken: true}); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return customErrors.WrapInternal(err, "Logout commit")
	}

	a.log.Info("user logged out", zap.Int64("user_id", user.ID))
	return nil
}

func (a *authService) Authenticate(token string) (model.TokenUser, error) {
	return a.tokens.Verify(token, "")
}

// absent turns a successful lookup into a conflict marker and swallows
// not-found, which is the outcome the caller hopes for.
func absent(_ model.User, err error) error {
	switch {
	case err == nil:
		return customErrors.ErrConflict
	case customErrors.IsNotFound(err):
		return nil
	default:
		return err
	}
}

func conflictOr(err error, field string) error {
	if err == customErrors.ErrConflict {
		return customErrors.NewConflict(field)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
