package repository

import (
	"context"
	"testing"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChannelRepository(db)
	ctx := context.Background()

	admin := &models.User{Username: "admin", Role: models.RoleAdmin}
	member := &models.User{Username: "member"}
	require.NoError(t, db.Create(admin).Error)
	require.NoError(t, db.Create(member).Error)

	ch := &models.Channel{Name: "general", CreatedBy: member.ID}
	require.NoError(t, repo.Create(ctx, ch))

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, "general", got.Name)
		assert.False(t, got.IsLocked)
	})

	t.Run("missing channel is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999)
		require.Error(t, err)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})

	t.Run("lock records actor and time", func(t *testing.T) {
		locked, err := repo.SetLocked(ctx, ch.ID, admin.ID, true)
		require.NoError(t, err)
		assert.True(t, locked.IsLocked)
		require.NotNil(t, locked.LockedBy)
		assert.Equal(t, admin.ID, *locked.LockedBy)
		assert.NotNil(t, locked.LockedAt)
	})

	t.Run("unlock clears actor and time", func(t *testing.T) {
		unlocked, err := repo.SetLocked(ctx, ch.ID, admin.ID, false)
		require.NoError(t, err)
		assert.False(t, unlocked.IsLocked)
		assert.Nil(t, unlocked.LockedBy)
		assert.Nil(t, unlocked.LockedAt)
	})

	t.Run("authorize is idempotent", func(t *testing.T) {
		require.NoError(t, repo.AuthorizeUser(ctx, ch.ID, member.ID, admin.ID))
		require.NoError(t, repo.AuthorizeUser(ctx, ch.ID, member.ID, admin.ID))

		ok, err := repo.IsAuthorized(ctx, ch.ID, member.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		var count int64
		require.NoError(t, db.Model(&models.ChannelAuthorization{}).
			Where("channel_id = ? AND user_id = ?", ch.ID, member.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, repo.RevokeUser(ctx, ch.ID, member.ID))
		ok, err := repo.IsAuthorized(ctx, ch.ID, member.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list ordered by name", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Channel{Name: "announcements", CreatedBy: member.ID}))
		channels, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, channels, 2)
		assert.Equal(t, "announcements", channels[0].Name)
		assert.Equal(t, "general", channels[1].Name)
	})
}
