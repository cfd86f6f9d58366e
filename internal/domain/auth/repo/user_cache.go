package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
)

// UserCache keeps public profiles keyed by user id.
type UserCache interface {
	Get(ctx context.Context, id int64) (model.PublicUser, bool, error)

	Set(ctx context.Context, u model.PublicUser) error

	Delete(ctx context.Context, id int64) error
}
