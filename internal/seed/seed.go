// Package seed creates demo data for development databases. Nothing in here
// runs in production paths.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"commons/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options controls how much data the seeder generates.
type Options struct {
	Users    int
	Channels int
	Messages int

	// MaxDays spreads message timestamps over this many days back.
	MaxDays int
}

// Seeder populates the database with plausible chat activity.
type Seeder struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewSeeder creates a Seeder with the given options.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, opts: opts, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// ClearAll wipes every seeded table. Development only.
func (s *Seeder) ClearAll() error {
	tables := []interface{}{
		&models.ChannelRead{}, &models.Report{}, &models.BanRecord{},
		&models.ChannelAuthorization{}, &models.Message{}, &models.Channel{}, &models.User{},
	}
	for _, table := range tables {
		if err := s.db.Unscoped().Where("1 = 1").Delete(table).Error; err != nil {
			return fmt.Errorf("clearing %T: %w", table, err)
		}
	}
	log.Println("seed: cleared existing data")
	return nil
}

// Run seeds users, channels and message history in order.
func (s *Seeder) Run() error {
	users, err := s.seedUsers()
	if err != nil {
		return err
	}
	channels, err := s.seedChannels(users)
	if err != nil {
		return err
	}
	if err := s.seedMessages(users, channels); err != nil {
		return err
	}
	return s.seedModeration(users, channels)
}

func (s *Seeder) seedUsers() ([]*models.User, error) {
	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		user := s.BuildUser()
		if i == 0 {
			user.Username = "admin"
			user.Role = models.RoleAdmin
		}
		if err := s.db.Create(user).Error; err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		users = append(users, user)
	}
	log.Printf("seed: created %d users (first one is an admin)", len(users))
	return users, nil
}

// BuildUser constructs a user without persisting it.
func (s *Seeder) BuildUser() *models.User {
	return &models.User{
		Username:   strings.ToLower(gofakeit.Username()) + fmt.Sprint(s.rng.Intn(1000)),
		AvatarURL:  fmt.Sprintf("https://i.pravatar.cc/150?u=%s", uuid.NewString()),
		IsVerified: s.rng.Intn(10) < 3,
		Role:       models.RoleUser,
	}
}

func (s *Seeder) seedChannels(users []*models.User) ([]*models.Channel, error) {
	names := []string{"general", "random", "introductions", "support", "announcements", "off-topic", "dev", "music"}
	count := s.opts.Channels
	if count > len(names) {
		count = len(names)
	}
	channels := make([]*models.Channel, 0, count)
	for i := 0; i < count; i++ {
		ch := &models.Channel{
			Name:        names[i],
			Description: gofakeit.Sentence(8),
			CreatedBy:   users[s.rng.Intn(len(users))].ID,
		}
		if err := s.db.Create(ch).Error; err != nil {
			return nil, fmt.Errorf("creating channel: %w", err)
		}
		channels = append(channels, ch)
	}
	log.Printf("seed: created %d channels", len(channels))
	return channels, nil
}

func (s *Seeder) seedMessages(users []*models.User, channels []*models.Channel) error {
	emojis := []string{"👍", "🔥", "😂", "❤️", "🎉"}
	recent := make(map[uint][]*models.Message)

	for i := 0; i < s.opts.Messages; i++ {
		ch := channels[s.rng.Intn(len(channels))]
		author := users[s.rng.Intn(len(users))]
		msg := s.BuildMessage(ch.ID, author)

		// A slice of messages reply to something recent in the same channel.
		if prior := recent[ch.ID]; len(prior) > 0 && s.rng.Intn(5) == 0 {
			parent := prior[s.rng.Intn(len(prior))]
			snippet := []rune(parent.Content)
			if len(snippet) > 100 {
				snippet = snippet[:100]
			}
			msg.ReplyToID = &parent.ID
			msg.ReplyToAuthor = parent.AuthorUsername
			msg.ReplyToSnippet = string(snippet)
		}

		// Sprinkle reactions from random users.
		for r := 0; r < s.rng.Intn(4); r++ {
			msg.Reactions.Toggle(emojis[s.rng.Intn(len(emojis))], users[s.rng.Intn(len(users))].ID)
		}

		if err := s.db.Create(msg).Error; err != nil {
			return fmt.Errorf("creating message: %w", err)
		}
		recent[ch.ID] = append(recent[ch.ID], msg)
		if len(recent[ch.ID]) > 20 {
			recent[ch.ID] = recent[ch.ID][1:]
		}
	}
	log.Printf("seed: created %d messages", s.opts.Messages)
	return nil
}

// BuildMessage constructs a message without persisting it.
func (s *Seeder) BuildMessage(channelID uint, author *models.User) *models.Message {
	msg := &models.Message{
		ChannelID:      channelID,
		AuthorID:       author.ID,
		Content:        gofakeit.Sentence(3 + s.rng.Intn(15)),
		AuthorUsername: author.Username,
		AuthorAvatar:   author.AvatarURL,
		CreatedAt:      s.timestampBack(),
	}
	if s.rng.Intn(10) == 0 {
		msg.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", uuid.NewString())
	}
	return msg
}

func (s *Seeder) timestampBack() time.Time {
	back := time.Duration(s.rng.Intn(s.opts.MaxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back)
}

// seedModeration gives the moderation surfaces something to show: one locked
// channel with an allowlist, a channel ban, and a couple of open reports.
func (s *Seeder) seedModeration(users []*models.User, channels []*models.Channel) error {
	if len(users) < 3 || len(channels) == 0 {
		return nil
	}
	admin := users[0]
	locked := channels[len(channels)-1]

	now := time.Now().UTC()
	if err := s.db.Model(locked).Updates(map[string]interface{}{
		"is_locked": true, "locked_by": admin.ID, "locked_at": now,
	}).Error; err != nil {
		return fmt.Errorf("locking channel: %w", err)
	}
	auth := &models.ChannelAuthorization{ChannelID: locked.ID, UserID: users[1].ID, GrantedBy: admin.ID}
	if err := s.db.Create(auth).Error; err != nil {
		return fmt.Errorf("authorizing user: %w", err)
	}

	ban := &models.BanRecord{
		UserID:    users[2].ID,
		AdminID:   admin.ID,
		Reason:    "seeded channel ban for demo purposes",
		ChannelID: &channels[0].ID,
	}
	if err := s.db.Create(ban).Error; err != nil {
		return fmt.Errorf("creating ban: %w", err)
	}

	for i := 0; i < 2; i++ {
		report := &models.Report{
			ReporterID:     users[s.rng.Intn(len(users))].ID,
			ReportedUserID: users[s.rng.Intn(len(users))].ID,
			Reason:         gofakeit.Sentence(6),
			Status:         models.ReportStatusPending,
		}
		if err := s.db.Create(report).Error; err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
	}
	log.Println("seed: created moderation fixtures (locked channel, ban, reports)")
	return nil
}
