package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

func memoryDSN() string {
	return "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(zap.NewNop())
	require.NoError(t, m.Init(memoryDSN(), session.EngineOptions{PoolPrePing: true}, session.SessionOptions{}))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.CreateAll(context.Background()))
	return m
}

func countUsers(t *testing.T, m *session.Manager) int64 {
	t.Helper()
	var n int64
	require.NoError(t, m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		return s.DB().Model(&model.User{}).Count(&n).Error
	}))
	return n
}

func insert(s *session.Session, username string) error {
	return s.DB().Create(&model.User{Username: username, HashedPassword: "x", State: model.StateActive}).Error
}

func TestManager_Uninitialized(t *testing.T) {
	m := session.NewManager(nil)
	ctx := context.Background()

	err := m.Scoped(ctx, func(context.Context, *session.Session) error { return nil })
	require.ErrorIs(t, err, customErrors.ErrUninitialized)

	err = m.Connection(ctx, func(*gorm.DB) error { return nil })
	require.ErrorIs(t, err, customErrors.ErrUninitialized)

	require.ErrorIs(t, m.CreateAll(ctx), customErrors.ErrUninitialized)
	require.ErrorIs(t, m.Ping(ctx), customErrors.ErrUninitialized)
	require.NoError(t, m.Close())
}

func TestManager_UnsupportedDSN(t *testing.T) {
	m := session.NewManager(nil)
	require.Error(t, m.Init("mysql://nope", session.EngineOptions{}, session.SessionOptions{}))
}

func TestScoped_CommitPersists(t *testing.T) {
	m := newManager(t)

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		if err := insert(s, "alice"); err != nil {
			return err
		}
		return s.Commit()
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countUsers(t, m))
}

func TestScoped_NoImplicitCommit(t *testing.T) {
	m := newManager(t)

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		return insert(s, "alice")
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, countUsers(t, m))
}

func TestScoped_ErrorRollsBackAndPropagates(t *testing.T) {
	m := newManager(t)
	boom := errors.New("boom")

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		if err := insert(s, "alice"); err != nil {
			return err
		}
		return boom
	})
	require.Same(t, boom, err)
	require.EqualValues(t, 0, countUsers(t, m))
}

func TestScoped_PanicRollsBackAndRepanics(t *testing.T) {
	m := newManager(t)

	require.PanicsWithValue(t, "kaboom", func() {
		_ = m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
			_ = insert(s, "alice")
			panic("kaboom")
		})
	})
	require.EqualValues(t, 0, countUsers(t, m))
}

func TestSession_ReusableAfterCommit(t *testing.T) {
	m := newManager(t)

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		if err := insert(s, "alice"); err != nil {
			return err
		}
		if err := s.Commit(); err != nil {
			return err
		}
		// second transaction, left uncommitted
		return insert(s, "bob")
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countUsers(t, m))
}

func TestSession_Rollback(t *testing.T) {
	m := newManager(t)

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		require.NoError(t, insert(s, "alice"))
		require.NoError(t, s.Rollback())
		require.NoError(t, insert(s, "bob"))
		return s.Commit()
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		return s.DB().Model(&model.User{}).Pluck("username", &names).Error
	}))
	require.Equal(t, []string{"bob"}, names)
}

func TestConnection_CommitsOnSuccess(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Connection(ctx, func(tx *gorm.DB) error {
		return tx.Create(&model.User{Username: "alice", HashedPassword: "x"}).Error
	}))
	require.EqualValues(t, 1, countUsers(t, m))

	boom := errors.New("boom")
	err := m.Connection(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&model.User{Username: "bob", HashedPassword: "x"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countUsers(t, m))
}

func TestManager_InitTwiceReplacesEngine(t *testing.T) {
	m := newManager(t)

	require.NoError(t, m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		require.NoError(t, insert(s, "alice"))
		return s.Commit()
	}))

	require.NoError(t, m.Init(memoryDSN(), session.EngineOptions{}, session.SessionOptions{}))
	require.NoError(t, m.CreateAll(context.Background()))
	require.EqualValues(t, 0, countUsers(t, m))

	dialect, err := m.Dialect()
	require.NoError(t, err)
	require.Equal(t, "sqlite", dialect)
}

func TestManager_DropAll(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.DropAll(ctx))
	err := m.Scoped(ctx, func(_ context.Context, s *session.Session) error {
		var n int64
		return s.DB().Model(&model.User{}).Count(&n).Error
	})
	require.Error(t, err)
}

func TestScoped_UniqueViolationIsTranslated(t *testing.T) {
	m := newManager(t)

	err := m.Scoped(context.Background(), func(_ context.Context, s *session.Session) error {
		require.NoError(t, insert(s, "alice"))
		return insert(s, "alice")
	})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
