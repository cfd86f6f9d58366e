package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/page"
	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	repo "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
)

type Service interface {
	Get(ctx context.Context, uow repo.UnitOfWork, id int64) (model.PublicUser, error)
	Update(ctx context.Context, uow repo.UnitOfWork, id int64, in dto.UserUpdateDTO) (model.PublicUser, error)
	// Delete hides the user (soft delete) and returns the confirmation detail.
	Delete(ctx context.Context, uow repo.UnitOfWork, id int64) (string, error)
	List(ctx context.Context, uow repo.UnitOfWork, f dto.UserFilterDTO, p dto.PageDTO) (model.Page, error)
}

type userService struct {
	cache repo.UserCache
	v     *validator.Validate
	log   *zap.Logger
}

func New(cache repo.UserCache, v *validator.Validate, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &userService{cache: cache, v: v, log: log}
}

func (s *userService) Get(ctx context.Context, uow repo.UnitOfWork, id int64) (model.PublicUser, error) {
	if u, ok, err := s.cache.Get(ctx, id); err != nil {
		s.log.Warn("user cache read failed", zap.Int64("user_id", id), zap.Error(err))
	} else if ok {
		return u, nil
	}

	user, err := uow.Users().GetUserByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}

	pub := user.Public()
	if err := s.cache.Set(ctx, pub); err != nil {
		s.log.Warn("user cache write failed", zap.Int64("user_id", id), zap.Error(err))
	}
	return pub, nil
}

func (s *userService) Update(ctx context.Context, uow repo.UnitOfWork, id int64, in dto.UserUpdateDTO) (model.PublicUser, error) {
	if in.Email != nil {
		email := dto.NormalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := s.v.Struct(in); err != nil {
		return model.PublicUser{}, customErrors.NewValidation(err.Error())
	}

	users := uow.Users()
	if in.Email != nil {
		owner, err := users.GetUserByEmail(ctx, *in.Email)
		switch {
		case err == nil && owner.ID != id:
			return model.PublicUser{}, customErrors.NewConflict("email")
		case err != nil && !customErrors.IsNotFound(err):
			return model.PublicUser{}, err
		}
	}

	user, err := users.UpdateUser(ctx, id, repo.UserUpdate{Email: in.Email, Fullname: in.Fullname})
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := uow.Commit(); err != nil {
		return model.PublicUser{}, customErrors.WrapInternal(err, "Update commit")
	}

	s.invalidate(ctx, id)
	return user.Public(), nil
}

func (s *userService) Delete(ctx context.Context, uow repo.UnitOfWork, id int64) (string, error) {
	deleted := model.StateDeleted
	user, err := uow.Users().UpdateUser(ctx, id, repo.UserUpdate{State: &deleted})
	if err != nil {
		return "", err
	}
	if err := uow.Commit(); err != nil {
		return "", customErrors.WrapInternal(err, "Delete commit")
	}

	s.invalidate(ctx, id)
	s.log.Info("user deleted", zap.Int64("user_id", user.ID))
	return fmt.Sprintf("Deleted id=%d", user.ID), nil
}

func (s *userService) List(ctx context.Context, uow repo.UnitOfWork, f dto.UserFilterDTO, p dto.PageDTO) (model.Page, error) {
	if err := s.v.Struct(f); err != nil {
		return model.Page{}, customErrors.NewValidation(err.Error())
	}
	if p.Size < 1 || p.Number < 1 {
		return model.Page{}, customErrors.NewValidation("page[size] and page[number] must be positive")
	}

	filter := repo.UserFilter{
		Username: dto.NormalizeUsername(f.Username),
		Email:    dto.NormalizeEmail(f.Email),
		Fullname: f.Fullname,
	}

	users := uow.Users()
	found, err := users.ListUsers(ctx, filter, p.Size, p.Number)
	if err != nil {
		return model.Page{}, err
	}
	if len(found) == 0 {
		return model.Page{}, customErrors.NewNotFound("page")
	}

	total, err := users.CountUsers(ctx, filter)
	if err != nil {
		return model.Page{}, err
	}

	data := make([]model.PublicUser, 0, len(found))
	for _, u := range found {
		data = append(data, u.Public())
	}
	return model.Page{PageInfo: page.Info(total, p.Number, p.Size), PageData: data}, nil
}

func (s *userService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn("user cache invalidation failed", zap.Int64("user_id", id), zap.Error(err))
	}
}
