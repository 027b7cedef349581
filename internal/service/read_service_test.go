package service

import (
	"context"
	"testing"
	"time"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *serviceFixture) message(t *testing.T, channelID, authorID uint, content string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{ChannelID: channelID, AuthorID: authorID, Content: content, CreatedAt: at}
	require.NoError(t, f.db.Create(msg).Error)
	return msg
}

func TestUnreadTracking(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	viewer, _ := f.user(t, "viewer", models.RoleUser)
	other, _ := f.user(t, "other", models.RoleUser)
	ch := f.channel(t, "general", other.ID)

	base := time.Now().UTC().Add(-time.Hour)
	f.message(t, ch.ID, other.ID, "m0", base)
	f.message(t, ch.ID, other.ID, "m1", base.Add(time.Minute))

	t.Run("no marker means whole history unread", func(t *testing.T) {
		count, err := f.read.UnreadCount(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		marker, err := f.read.UnreadMarker(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		require.NotNil(t, marker)
		var oldest models.Message
		require.NoError(t, f.db.Where("channel_id = ?", ch.ID).Order("created_at ASC").First(&oldest).Error)
		assert.Equal(t, oldest.ID, *marker)
	})

	t.Run("mark read zeroes the count", func(t *testing.T) {
		read, err := f.read.MarkRead(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		require.NotNil(t, read.LastReadMessageID)

		count, err := f.read.UnreadCount(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		marker, err := f.read.UnreadMarker(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		assert.Nil(t, marker)
	})

	t.Run("only newer foreign messages count", func(t *testing.T) {
		future := time.Now().UTC().Add(time.Minute)
		mine := f.message(t, ch.ID, viewer.ID, "mine", future)
		f.message(t, ch.ID, other.ID, "theirs", future.Add(time.Second))

		count, err := f.read.UnreadCount(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// The divider sits at the first unseen message, own messages
		// included.
		marker, err := f.read.UnreadMarker(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		require.NotNil(t, marker)
		assert.Equal(t, mine.ID, *marker)
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		_, err := f.read.MarkRead(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)
		_, err = f.read.MarkRead(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)

		var rows int64
		require.NoError(t, f.db.Model(&models.ChannelRead{}).
			Where("channel_id = ? AND user_id = ?", ch.ID, viewer.ID).Count(&rows).Error)
		assert.Equal(t, int64(1), rows)
	})

	t.Run("marker advances to newest message", func(t *testing.T) {
		read, err := f.read.MarkRead(ctx, ch.ID, viewer.ID)
		require.NoError(t, err)

		var newest models.Message
		require.NoError(t, f.db.Where("channel_id = ?", ch.ID).
			Order("created_at DESC").First(&newest).Error)
		require.NotNil(t, read.LastReadMessageID)
		assert.Equal(t, newest.ID, *read.LastReadMessageID)
		assert.False(t, read.LastReadAt.Before(newest.CreatedAt))
	})

	t.Run("summary covers visited channels", func(t *testing.T) {
		states, err := f.read.UnreadSummary(ctx, viewer.ID)
		require.NoError(t, err)
		require.Len(t, states, 1)
		assert.Equal(t, ch.ID, states[0].ChannelID)
		assert.Zero(t, states[0].UnreadCount)
	})
}
