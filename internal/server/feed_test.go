package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"commons/internal/config"
	"commons/internal/database"
	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/notifications"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		Env:                "test",
		PageSize:           50,
		PresenceTTLSeconds: 30,
		TypingTTLMillis:    2000,
	}
	middleware.InitMiddleware(cfg)

	s, err := NewServerWithDeps(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func bearerToken(t *testing.T, userID uint, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprint(userID),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func getMessagePage(t *testing.T, s *Server, token string, channelID uint) ([]*models.Message, bool) {
	t.Helper()
	app := s.App()
	req := httptest.NewRequest("GET", fmt.Sprintf("/api/channels/%d/messages", channelID), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var page struct {
		Messages []*models.Message `json:"messages"`
		HasMore  bool              `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	return page.Messages, page.HasMore
}

func TestLatestPageMergesRealtimeEvents(t *testing.T) {
	s := setupTestServer(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	alice := &models.User{Username: "alice"}
	require.NoError(t, s.db.Create(alice).Error)
	ch := &models.Channel{Name: "general", CreatedBy: alice.ID}
	require.NoError(t, s.db.Create(ch).Error)
	stored := &models.Message{
		ChannelID: ch.ID, AuthorID: alice.ID, Content: "from the store",
		AuthorUsername: "alice", CreatedAt: base,
	}
	require.NoError(t, s.db.Create(stored).Error)

	token := bearerToken(t, alice.ID, models.RoleUser)

	messages, hasMore := getMessagePage(t, s, token, ch.ID)
	require.Len(t, messages, 1)
	assert.False(t, hasMore)
	assert.Equal(t, "from the store", messages[0].Content)

	// A message event arrives over the realtime stream. It exists only in the
	// view, so a page that includes it was served from the merge, not the
	// store.
	live := &models.Message{
		ID: 999, ChannelID: ch.ID, AuthorID: alice.ID, Content: "from the stream",
		AuthorUsername: "stale-name", CreatedAt: base.Add(time.Minute),
	}
	frame, err := json.Marshal(notifications.Event{
		Type: notifications.EventMessageCreated, ChannelID: ch.ID, Payload: live,
	})
	require.NoError(t, err)
	s.dispatchLocal(ch.ID, frame)

	t.Run("insert appears newest first", func(t *testing.T) {
		messages, _ := getMessagePage(t, s, token, ch.ID)
		require.Len(t, messages, 2)
		assert.Equal(t, uint(999), messages[0].ID)
		assert.Equal(t, "from the stream", messages[0].Content)
		assert.Equal(t, "alice", messages[0].AuthorUsername,
			"live profile must overlay the snapshot carried by the event")
	})

	t.Run("replayed insert does not duplicate", func(t *testing.T) {
		s.dispatchLocal(ch.ID, frame)
		messages, _ := getMessagePage(t, s, token, ch.ID)
		assert.Len(t, messages, 2)
	})

	t.Run("update merges field-wise", func(t *testing.T) {
		editedAt := base.Add(2 * time.Minute)
		update, err := json.Marshal(notifications.Event{
			Type:      notifications.EventMessageUpdated,
			ChannelID: ch.ID,
			Payload: map[string]interface{}{
				"id": 999, "content": "edited", "edited_at": editedAt,
			},
		})
		require.NoError(t, err)
		s.dispatchLocal(ch.ID, update)

		messages, _ := getMessagePage(t, s, token, ch.ID)
		require.Len(t, messages, 2)
		assert.Equal(t, "edited", messages[0].Content)
		require.NotNil(t, messages[0].EditedAt)
	})

	t.Run("delete removes from the page", func(t *testing.T) {
		del, err := json.Marshal(notifications.Event{
			Type:      notifications.EventMessageDeleted,
			ChannelID: ch.ID,
			Payload:   map[string]interface{}{"id": 999, "deleted": true},
		})
		require.NoError(t, err)
		s.dispatchLocal(ch.ID, del)

		messages, _ := getMessagePage(t, s, token, ch.ID)
		require.Len(t, messages, 1)
		assert.Equal(t, "from the store", messages[0].Content)
	})
}

func TestLatestPageOrdersScrambledArrivals(t *testing.T) {
	s := setupTestServer(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	alice := &models.User{Username: "alice"}
	require.NoError(t, s.db.Create(alice).Error)
	ch := &models.Channel{Name: "general", CreatedBy: alice.ID}
	require.NoError(t, s.db.Create(ch).Error)

	token := bearerToken(t, alice.ID, models.RoleUser)

	// Warm the view with the (empty) store page, then deliver events in
	// scrambled network order.
	messages, _ := getMessagePage(t, s, token, ch.ID)
	require.Empty(t, messages)

	for _, i := range []int{3, 1, 4, 2} {
		frame, err := json.Marshal(notifications.Event{
			Type:      notifications.EventMessageCreated,
			ChannelID: ch.ID,
			Payload: &models.Message{
				ID: uint(i), ChannelID: ch.ID, AuthorID: alice.ID,
				Content:   fmt.Sprintf("m%d", i),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			},
		})
		require.NoError(t, err)
		s.dispatchLocal(ch.ID, frame)
	}

	messages, _ = getMessagePage(t, s, token, ch.ID)
	require.Len(t, messages, 4)
	for i, want := range []uint{4, 3, 2, 1} {
		assert.Equal(t, want, messages[i].ID, "page must be newest first regardless of arrival order")
	}
}
