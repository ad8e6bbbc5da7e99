package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/model"
	"github.com/iliyamo/agriplan/internal/testutil"
)

func newRepo(t *testing.T) *UserRepo {
	t.Helper()
	return NewUserRepo(testutil.OpenDB(t))
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "alice", "hash", model.RoleUser, model.StatusPending, 10)
	require.NoError(t, err)
	require.NotZero(t, id)

	u, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Equal(t, model.StatusPending, u.Status)
	assert.Equal(t, 0, u.UsageDaily)
	assert.Equal(t, 10, u.LimitDaily)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = repo.GetByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound, "usernames are case-sensitive")

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "bob", "h", model.RoleUser, model.StatusPending, 10)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "bob", "h2", model.RoleUser, model.StatusPending, 10)
	assert.ErrorIs(t, err, apperr.ErrDuplicateUsername)
}

func TestUserRepo_List(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, name := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, name, "h", model.RoleUser, model.StatusPending, 10)
		require.NoError(t, err)
	}
	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "a", users[0].Username)
	assert.Equal(t, "c", users[2].Username)
}

func TestUserRepo_ReserveRespectsLimitAndStatus(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "carol", "h", model.RoleUser, model.StatusPending, 2)
	require.NoError(t, err)

	_, ok, err := repo.Reserve(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "pending accounts are never admitted")

	require.NoError(t, repo.UpdateStatus(ctx, id, model.StatusApproved, model.StatusSources(model.StatusApproved)))
	for i := 0; i < 2; i++ {
		_, ok, err = repo.Reserve(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	_, ok, err = repo.Reserve(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, u.UsageDaily)

	require.NoError(t, repo.Release(ctx, id, 0))
	u, _ = repo.GetByID(ctx, id)
	assert.Equal(t, 1, u.UsageDaily)
}

func TestUserRepo_ReleaseNeverGoesNegative(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "dave", "h", model.RoleUser, model.StatusApproved, 5)
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, id, 0))

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, u.UsageDaily)
}

func TestUserRepo_ConcurrentReserveNeverOverAdmits(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "eve", "h", model.RoleUser, model.StatusApproved, 3)
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Reserve(ctx, id)
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, admitted.Load())
	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, u.UsageDaily)
}

func TestUserRepo_ReleaseFromBeforeResetIsIgnored(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "grace", "h", model.RoleUser, model.StatusApproved, 5)
	require.NoError(t, err)
	stale, ok, err := repo.Reserve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.ResetUsage(ctx, id))
	current, ok, err := repo.Reserve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stale+1, current)

	require.NoError(t, repo.Release(ctx, id, stale))
	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, u.UsageDaily, "unit charged after the reset must survive")

	require.NoError(t, repo.Release(ctx, id, current))
	u, _ = repo.GetByID(ctx, id)
	assert.Equal(t, 0, u.UsageDaily)
}

func TestUserRepo_AdminUpdates(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "frank", "h", model.RoleUser, model.StatusApproved, 5)
	require.NoError(t, err)
	_, ok, err := repo.Reserve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.UpdateLimit(ctx, id, 3))
	require.NoError(t, repo.UpdateLimit(ctx, id, 3), "same value again is not an error")
	require.NoError(t, repo.ResetUsage(ctx, id))
	require.NoError(t, repo.ResetUsage(ctx, id))

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, u.LimitDaily)
	assert.Equal(t, 0, u.UsageDaily)

	assert.ErrorIs(t, repo.UpdateLimit(ctx, 999, 3), apperr.ErrUserNotFound)
	assert.ErrorIs(t, repo.ResetUsage(ctx, 999), apperr.ErrUserNotFound)
}

func TestUserRepo_UpdateStatusTransitions(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "gina", "h", model.RoleUser, model.StatusPending, 5)
	require.NoError(t, err)

	steps := []struct {
		to      string
		wantErr error
	}{
		{model.StatusApproved, nil},
		{model.StatusApproved, nil},
		{model.StatusBanned, nil},
		{model.StatusPending, apperr.ErrInvalidTransition},
		{model.StatusApproved, nil},
	}
	for _, s := range steps {
		err := repo.UpdateStatus(ctx, id, s.to, model.StatusSources(s.to))
		if s.wantErr != nil {
			assert.ErrorIs(t, err, s.wantErr, "to %s", s.to)
			continue
		}
		require.NoError(t, err, "to %s", s.to)
		u, _ := repo.GetByID(ctx, id)
		assert.Equal(t, s.to, u.Status)
	}

	err = repo.UpdateStatus(ctx, 999, model.StatusBanned, model.StatusSources(model.StatusBanned))
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}
