package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ChannelKeyPrefix  = "channel:%d"
	ChannelListKey    = "channels:all"
	LatestPagePrefix  = "channel:%d:latest-page"
	ProfileKeyPrefix  = "profile:%d"
	PresenceSetPrefix = "presence:channel:%d"
)

const (
	ChannelTTL    = 10 * time.Minute
	LatestPageTTL = 2 * time.Minute
	ProfileTTL    = 5 * time.Minute
)

func ChannelKey(channelID uint) string {
	return fmt.Sprintf(ChannelKeyPrefix, channelID)
}

func LatestPageKey(channelID uint) string {
	return fmt.Sprintf(LatestPagePrefix, channelID)
}

func ProfileKey(userID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

// PresenceSetKey is the Redis set holding user ids currently present in a
// channel, maintained by the hub for cross-instance presence listings.
func PresenceSetKey(channelID uint) string {
	return fmt.Sprintf(PresenceSetPrefix, channelID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateChannel(ctx context.Context, channelID uint) {
	Invalidate(ctx, ChannelKey(channelID))
	Invalidate(ctx, LatestPageKey(channelID))
	Invalidate(ctx, ChannelListKey)
}

func InvalidateProfile(ctx context.Context, userID uint) {
	Invalidate(ctx, ProfileKey(userID))
}
