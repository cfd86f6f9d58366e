package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/db/postgres"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

const uowKey = "unit_of_work"

// DBSession gives every request its own scoped session. Handlers commit
// through the unit of work; anything left uncommitted is rolled back once the
// handler chain returns.
func DBSession(m *session.Manager, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := m.Scoped(c.Request.Context(), func(_ context.Context, s *session.Session) error {
			c.Set(uowKey, postgres.NewUnitOfWork(s))
			c.Next()
			if last := c.Errors.Last(); last != nil {
				return last.Err
			}
			return nil
		})
		if err != nil && !c.Writer.Written() {
			log.Error("database session unavailable", zap.Error(err))
			AbortWithError(c, err)
		}
	}
}

// UnitOfWork returns the session-bound unit of work set by DBSession.
func UnitOfWork(c *gin.Context) repo.UnitOfWork {
	return c.MustGet(uowKey).(repo.UnitOfWork)
}
