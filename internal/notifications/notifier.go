package notifications

import (
	"context"
	"log"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"commons/internal/cache"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes chat events to Redis so every instance's hub can fan
// them out to its local websocket clients. A nil client degrades every method
// to a no-op, which keeps single-instance and test setups working without
// Redis.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier returns a Notifier backed by the given Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// ChannelTopic derives the Redis pub/sub topic for a chat channel.
func ChannelTopic(channelID uint) string {
	return "chat:channel:" + strconv.FormatUint(uint64(channelID), 10)
}

// TypingTopic derives the Redis pub/sub topic for a channel's typing events.
func TypingTopic(channelID uint) string {
	return "typing:channel:" + strconv.FormatUint(uint64(channelID), 10)
}

// PresenceTopic derives the Redis pub/sub topic for a channel's presence
// events.
func PresenceTopic(channelID uint) string {
	return "presence:channel:" + strconv.FormatUint(uint64(channelID), 10)
}

// TopicChannelID extracts the channel id from any of the chat topics.
// Returns 0 for unrecognized topics.
func TopicChannelID(topic string) uint {
	idx := strings.LastIndexByte(topic, ':')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(topic[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// PublishChat publishes a message event to a channel topic.
func (n *Notifier) PublishChat(ctx context.Context, channelID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ChannelTopic(channelID), payload).Err()
}

// PublishTyping publishes a typing event to a channel topic.
func (n *Notifier) PublishTyping(ctx context.Context, channelID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, TypingTopic(channelID), payload).Err()
}

// PublishPresence publishes a presence event to a channel topic.
func (n *Notifier) PublishPresence(ctx context.Context, channelID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, PresenceTopic(channelID), payload).Err()
}

// TrackPresence records the user in the channel's shared presence set so
// other instances can list them. The set expires as a whole, heartbeats from
// live members keep refreshing it.
func (n *Notifier) TrackPresence(ctx context.Context, channelID, userID uint, ttl time.Duration) error {
	if n.rdb == nil {
		return nil
	}
	key := cache.PresenceSetKey(channelID)
	if err := n.rdb.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return n.rdb.Expire(ctx, key, ttl).Err()
}

// UntrackPresence withdraws the user from the channel's shared presence set.
func (n *Notifier) UntrackPresence(ctx context.Context, channelID, userID uint) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.SRem(ctx, cache.PresenceSetKey(channelID), userID).Err()
}

// ListPresence returns the user ids in the channel's shared presence set.
func (n *Notifier) ListPresence(ctx context.Context, channelID uint) ([]uint, error) {
	if n.rdb == nil {
		return nil, nil
	}
	members, err := n.rdb.SMembers(ctx, cache.PresenceSetKey(channelID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// StartChatSubscriber subscribes to all chat topic patterns and calls
// onMessage for each incoming frame. The subscriber goroutine recovers from
// handler panics so one bad payload cannot kill delivery.
func (n *Notifier) StartChatSubscriber(
	ctx context.Context, onMessage func(topic string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "chat:channel:*", "typing:channel:*", "presence:channel:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in chat subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
