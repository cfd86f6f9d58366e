package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
)

// UserFilter narrows list and count queries. Empty fields are ignored.
type UserFilter struct {
	Username string
	Email    string
	Fullname string
}

// UserUpdate lists the columns to rewrite. Nil pointers are left untouched;
// ClearRefreshToken writes NULL and wins over RefreshToken.
type UserUpdate struct {
	Email             *string
	Fullname          *string
	State             *model.UserState
	RefreshToken      *string
	ClearRefreshToken bool
}

func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Fullname == nil && u.State == nil &&
		u.RefreshToken == nil && !u.ClearRefreshToken
}

type UserRepo interface {
	CreateUser(ctx context.Context, u *model.User) error

	GetUserByID(ctx context.Context, id int64) (model.User, error)

	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (model.User, error)

	CountUsers(ctx context.Context, f UserFilter) (int64, error)

	ListUsers(ctx context.Context, f UserFilter, size, number int) ([]model.User, error)
}

// UnitOfWork is one request-scoped session. Repositories it hands out share
// its transaction; nothing is persisted until Commit.
type UnitOfWork interface {
	Users() UserRepo
	Commit() error
}
