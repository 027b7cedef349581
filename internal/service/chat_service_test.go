package service

import (
	"context"
	"strings"
	"testing"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndLoadFirstMessage(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	userA, aSess := f.user(t, "alice", models.RoleUser)
	ch := f.channel(t, "general", userA.ID)

	empty, err := f.chat.LoadPage(ctx, ch.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
	assert.False(t, empty.HasMore)

	msg, err := f.chat.SendMessage(ctx, aSess, SendMessageInput{ChannelID: ch.ID, Content: "hello"})
	require.NoError(t, err)

	page, err := f.chat.LoadPage(ctx, ch.ID, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello", page.Messages[0].Content)
	assert.Equal(t, userA.ID, page.Messages[0].AuthorID)
	assert.Equal(t, "alice", page.Messages[0].AuthorUsername)
	assert.False(t, page.HasMore)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
}

func TestSendMessageValidation(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	user, sess := f.user(t, "alice", models.RoleUser)
	ch := f.channel(t, "general", user.ID)

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, sess, SendMessageInput{ChannelID: ch.ID, Content: "   "})
		require.Error(t, err)
	})

	t.Run("image-only message allowed", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, sess, SendMessageInput{
			ChannelID: ch.ID, ImageURL: "https://cdn.example.com/cat.webp",
		})
		require.NoError(t, err)
		assert.Empty(t, msg.Content)
		assert.NotEmpty(t, msg.ImageURL)
	})

	t.Run("oversized content rejected", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, sess, SendMessageInput{
			ChannelID: ch.ID, Content: strings.Repeat("a", maxContentLength+1),
		})
		require.Error(t, err)
	})

	t.Run("missing channel rejected", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, sess, SendMessageInput{ChannelID: 999, Content: "hi"})
		require.Error(t, err)
	})
}

func TestReplySnapshots(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	alice, aliceSess := f.user(t, "alice", models.RoleUser)
	_, bobSess := f.user(t, "bob", models.RoleUser)
	ch := f.channel(t, "general", alice.ID)
	other := f.channel(t, "random", alice.ID)

	parent, err := f.chat.SendMessage(ctx, aliceSess, SendMessageInput{
		ChannelID: ch.ID, Content: strings.Repeat("long parent content ", 10),
	})
	require.NoError(t, err)

	t.Run("reply snapshots author and snippet", func(t *testing.T) {
		reply, err := f.chat.SendMessage(ctx, bobSess, SendMessageInput{
			ChannelID: ch.ID, Content: "agreed", ReplyToID: &parent.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, reply.ReplyToID)
		assert.Equal(t, parent.ID, *reply.ReplyToID)
		assert.Equal(t, "alice", reply.ReplyToAuthor)
		assert.LessOrEqual(t, len([]rune(reply.ReplyToSnippet)), maxSnippetLength)
		assert.NotEmpty(t, reply.ReplyToSnippet)
	})

	t.Run("cross-channel reply rejected", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, bobSess, SendMessageInput{
			ChannelID: other.ID, Content: "sneaky", ReplyToID: &parent.ID,
		})
		require.Error(t, err)
	})
}

func TestEditMessageAuthorOnly(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	alice, aliceSess := f.user(t, "alice", models.RoleUser)
	_, bobSess := f.user(t, "bob", models.RoleUser)
	_, adminSess := f.user(t, "admin", models.RoleAdmin)
	ch := f.channel(t, "general", alice.ID)

	msg, err := f.chat.SendMessage(ctx, aliceSess, SendMessageInput{ChannelID: ch.ID, Content: "original"})
	require.NoError(t, err)

	t.Run("author may edit", func(t *testing.T) {
		edited, err := f.chat.EditMessage(ctx, aliceSess, msg.ID, "fixed")
		require.NoError(t, err)
		assert.Equal(t, "fixed", edited.Content)
		assert.NotNil(t, edited.EditedAt)
	})

	t.Run("others may not edit", func(t *testing.T) {
		_, err := f.chat.EditMessage(ctx, bobSess, msg.ID, "hijack")
		assertForbidden(t, err, "")
	})

	t.Run("admin may not edit on behalf", func(t *testing.T) {
		_, err := f.chat.EditMessage(ctx, adminSess, msg.ID, "admin edit")
		assertForbidden(t, err, "")
	})
}

func TestDeleteMessageAuthorOrAdmin(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	alice, aliceSess := f.user(t, "alice", models.RoleUser)
	_, bobSess := f.user(t, "bob", models.RoleUser)
	_, adminSess := f.user(t, "admin", models.RoleAdmin)
	ch := f.channel(t, "general", alice.ID)

	first, err := f.chat.SendMessage(ctx, aliceSess, SendMessageInput{ChannelID: ch.ID, Content: "one"})
	require.NoError(t, err)
	second, err := f.chat.SendMessage(ctx, aliceSess, SendMessageInput{ChannelID: ch.ID, Content: "two"})
	require.NoError(t, err)

	t.Run("stranger may not delete", func(t *testing.T) {
		_, err := f.chat.DeleteMessage(ctx, bobSess, first.ID)
		assertForbidden(t, err, "")
	})

	t.Run("author soft-deletes", func(t *testing.T) {
		_, err := f.chat.DeleteMessage(ctx, aliceSess, first.ID)
		require.NoError(t, err)

		page, err := f.chat.LoadPage(ctx, ch.ID, nil)
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, second.ID, page.Messages[0].ID)

		var raw models.Message
		require.NoError(t, f.db.Unscoped().First(&raw, first.ID).Error)
		assert.True(t, raw.DeletedAt.Valid)
	})

	t.Run("admin deletes on behalf", func(t *testing.T) {
		_, err := f.chat.DeleteMessage(ctx, adminSess, second.ID)
		require.NoError(t, err)
	})
}

func TestToggleReaction(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	userA, aSess := f.user(t, "alice", models.RoleUser)
	ch := f.channel(t, "general", userA.ID)
	msg, err := f.chat.SendMessage(ctx, aSess, SendMessageInput{ChannelID: ch.ID, Content: "react to me"})
	require.NoError(t, err)

	t.Run("first react adds entry", func(t *testing.T) {
		updated, added, err := f.chat.ToggleReaction(ctx, aSess, msg.ID, "👍")
		require.NoError(t, err)
		assert.True(t, added)
		require.Len(t, updated.Reactions, 1)
		assert.Equal(t, "👍", updated.Reactions[0].Emoji)
		assert.Equal(t, []uint{userA.ID}, updated.Reactions[0].UserIDs)
	})

	t.Run("same react toggles off", func(t *testing.T) {
		updated, added, err := f.chat.ToggleReaction(ctx, aSess, msg.ID, "👍")
		require.NoError(t, err)
		assert.False(t, added)
		assert.Empty(t, updated.Reactions)
	})

	t.Run("non-emoji rejected", func(t *testing.T) {
		_, _, err := f.chat.ToggleReaction(ctx, aSess, msg.ID, "lol")
		require.Error(t, err)
		_, _, err = f.chat.ToggleReaction(ctx, aSess, msg.ID, "")
		require.Error(t, err)
		_, _, err = f.chat.ToggleReaction(ctx, aSess, msg.ID, "👍 nice")
		require.Error(t, err)
	})
}

func TestPinAdminOnly(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	alice, aliceSess := f.user(t, "alice", models.RoleUser)
	_, adminSess := f.user(t, "admin", models.RoleAdmin)
	ch := f.channel(t, "general", alice.ID)
	msg, err := f.chat.SendMessage(ctx, aliceSess, SendMessageInput{ChannelID: ch.ID, Content: "important"})
	require.NoError(t, err)

	_, err = f.chat.SetPinned(ctx, aliceSess, msg.ID, true)
	assertForbidden(t, err, ReasonInsufficient)

	pinned, err := f.chat.SetPinned(ctx, adminSess, msg.ID, true)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)

	list, err := f.chat.GetPinned(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)
}

func TestCreateChannel(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	_, sess := f.user(t, "founder", models.RoleUser)

	ch, err := f.chat.CreateChannel(ctx, sess, "  general  ", "talk about anything")
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, sess.UserID, ch.CreatedBy)

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := f.chat.CreateChannel(ctx, sess, "general", "")
		require.Error(t, err)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := f.chat.CreateChannel(ctx, sess, "   ", "")
		require.Error(t, err)
	})
}
