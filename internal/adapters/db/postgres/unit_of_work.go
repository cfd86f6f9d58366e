package postgres

import (
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

// UnitOfWork binds repositories to one scoped session.
type UnitOfWork struct {
	s *session.Session
}

func NewUnitOfWork(s *session.Session) *UnitOfWork {
	return &UnitOfWork{s: s}
}

// Users is rebuilt on every call so that it picks up the transaction opened
// after a previous Commit.
func (u *UnitOfWork) Users() repo.UserRepo {
	return NewPostgresUserRepo(u.s.DB())
}

func (u *UnitOfWork) Commit() error {
	return u.s.Commit()
}
