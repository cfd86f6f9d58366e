package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
)

// PostgresUserRepo runs on whatever handle it is given: the session's
// transaction in production, a bare sqlite handle in tests.
type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func (p *PostgresUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if user.State == "" {
		user.State = model.StateActive
	}
	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if field, ok := uniqueViolation(err); ok {
			return customErrors.NewConflict(field)
		}
		return customErrors.WrapInternal(err, "CreateUser")
	}
	return nil
}

func (p *PostgresUserRepo) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	return p.first(ctx, "GetUserByID", "id = ?", id)
}

func (p *PostgresUserRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return p.first(ctx, "GetUserByUsername", "username = ?", username)
}

func (p *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.first(ctx, "GetUserByEmail", "email = ?", email)
}

func (p *PostgresUserRepo) first(ctx context.Context, op, query string, arg any) (model.User, error) {
	var u model.User
	res := p.db.WithContext(ctx).Where(query, arg).First(&u)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.NewNotFound("user")
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapInternal(err, op)
	}
	return u, nil
}

func (p *PostgresUserRepo) UpdateUser(ctx context.Context, id int64, upd repo.UserUpdate) (model.User, error) {
	if upd.Empty() {
		return p.GetUserByID(ctx, id)
	}

	values := map[string]interface{}{}
	if upd.Email != nil {
		values["email"] = *upd.Email
	}
	if upd.Fullname != nil {
		values["fullname"] = *upd.Fullname
	}
	if upd.State != nil {
		values["state"] = *upd.State
	}
	if upd.RefreshToken != nil {
		values["refresh_token"] = *upd.RefreshToken
	}
	if upd.ClearRefreshToken {
		values["refresh_token"] = nil
	}

	res := p.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(values)
	if err := res.Error; err != nil {
		if field, ok := uniqueViolation(err); ok {
			return model.User{}, customErrors.NewConflict(field)
		}
		return model.User{}, customErrors.WrapInternal(err, "UpdateUser")
	}
	if res.RowsAffected == 0 {
		return model.User{}, customErrors.NewNotFound("user")
	}

	return p.GetUserByID(ctx, id)
}

func (p *PostgresUserRepo) CountUsers(ctx context.Context, f repo.UserFilter) (int64, error) {
	var n int64
	if err := filtered(p.db.WithContext(ctx).Model(&model.User{}), f).Count(&n).Error; err != nil {
		return 0, customErrors.WrapInternal(err, "CountUsers")
	}
	return n, nil
}

// ListUsers returns page number (1-based) of the filtered users ordered by id.
func (p *PostgresUserRepo) ListUsers(ctx context.Context, f repo.UserFilter, size, number int) ([]model.User, error) {
	if size < 1 || number < 1 {
		return nil, customErrors.NewValidation("page size and number must be positive")
	}

	var users []model.User
	err := filtered(p.db.WithContext(ctx), f).
		Order("id").
		Offset((number - 1) * size).
		Limit(size).
		Find(&users).Error
	if err != nil {
		return nil, customErrors.WrapInternal(err, "ListUsers")
	}
	return users, nil
}

func filtered(db *gorm.DB, f repo.UserFilter) *gorm.DB {
	if f.Username != "" {
		db = db.Where("username = ?", f.Username)
	}
	if f.Email != "" {
		db = db.Where("email = ?", f.Email)
	}
	if f.Fullname != "" {
		db = db.Where("fullname = ?", f.Fullname)
	}
	return db
}

// uniqueViolation recognises both the translated gorm error and a raw
// postgres 23505, and guesses the offending column when the driver tells us.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return columnOf(pgErr.ConstraintName + " " + pgErr.Detail), true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return columnOf(err.Error()), true
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return columnOf(err.Error()), true
	}
	return "", false
}

func columnOf(msg string) string {
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "username"):
		return "username"
	default:
		return "user"
	}
}
