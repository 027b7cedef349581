package seed

import (
	"testing"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Channel{}, &models.ChannelAuthorization{},
		&models.Message{}, &models.BanRecord{}, &models.Report{}, &models.ChannelRead{},
	))
	return db
}

func TestSeederRun(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db, Options{Users: 10, Channels: 3, Messages: 50, MaxDays: 7})
	require.NoError(t, s.Run())

	var users, channels, messages int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Channel{}).Count(&channels).Error)
	require.NoError(t, db.Model(&models.Message{}).Count(&messages).Error)
	assert.Equal(t, int64(10), users)
	assert.Equal(t, int64(3), channels)
	assert.Equal(t, int64(50), messages)

	var admin models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).First(&admin).Error)
	assert.Equal(t, "admin", admin.Username)

	var locked int64
	require.NoError(t, db.Model(&models.Channel{}).Where("is_locked = ?", true).Count(&locked).Error)
	assert.Equal(t, int64(1), locked)

	var reports int64
	require.NoError(t, db.Model(&models.Report{}).
		Where("status = ?", models.ReportStatusPending).Count(&reports).Error)
	assert.Equal(t, int64(2), reports)
}

func TestSeederClearAll(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db, Options{Users: 5, Channels: 2, Messages: 10})
	require.NoError(t, s.Run())
	require.NoError(t, s.ClearAll())

	var messages int64
	require.NoError(t, db.Unscoped().Model(&models.Message{}).Count(&messages).Error)
	assert.Zero(t, messages)
}

func TestBuildMessageShape(t *testing.T) {
	s := NewSeeder(nil, Options{MaxDays: 7})
	author := &models.User{ID: 3, Username: "alice", AvatarURL: "a.png"}

	msg := s.BuildMessage(9, author)
	assert.Equal(t, uint(9), msg.ChannelID)
	assert.Equal(t, author.ID, msg.AuthorID)
	assert.Equal(t, "alice", msg.AuthorUsername)
	assert.NotEmpty(t, msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())
}
