package chathub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultChannelPrefix prefixes the Redis channel of every room.
	DefaultChannelPrefix = "chat:room:"
	// relayChannelSize is the subscription buffer; go-redis drops messages
	// once it stays full.
	relayChannelSize = 1024
)

// Fanout delivers an accepted frame to the sessions of a room.
type Fanout interface {
	Publish(ctx context.Context, roomID uint, payload []byte) error
}

// LocalFanout broadcasts straight to the in-process registry.
type LocalFanout struct {
	registry *Registry
}

func NewLocalFanout(registry *Registry) *LocalFanout {
	return &LocalFanout{registry: registry}
}

func (f *LocalFanout) Publish(_ context.Context, roomID uint, payload []byte) error {
	f.registry.Broadcast(roomID, payload)
	return nil
}

// RedisClient is the subset of *redis.Client used by the relay.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// relayEnvelope tags a relayed frame with the instance that published it.
// Frame is carried as bytes so remote sessions get it unchanged.
type relayEnvelope struct {
	Origin string `json:"origin"`
	Frame  []byte `json:"frame"`
}

// RedisFanout relays frames through Redis Pub/Sub so sessions held by other
// instances receive them as well. Local sessions are served straight from the
// registry; frames coming back from this instance's own publish are skipped.
type RedisFanout struct {
	client     RedisClient
	registry   *Registry
	prefix     string
	instanceID string
	log        *slog.Logger
}

func NewRedisFanout(client RedisClient, registry *Registry, prefix string, log *slog.Logger) *RedisFanout {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	instanceID := uuid.NewString()
	return &RedisFanout{
		client:     client,
		registry:   registry,
		prefix:     prefix,
		instanceID: instanceID,
		log:        log.With("component", "redis-fanout", "instance_id", instanceID),
	}
}

// Publish delivers the frame to the local sessions of the room and then
// relays it to the other instances. A relay failure is returned after local
// delivery has happened.
func (f *RedisFanout) Publish(ctx context.Context, roomID uint, payload []byte) error {
	f.registry.Broadcast(roomID, payload)

	envelope, err := json.Marshal(relayEnvelope{Origin: f.instanceID, Frame: payload})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.Channel(roomID), envelope).Err()
}

// Channel returns the Redis channel name of a room.
func (f *RedisFanout) Channel(roomID uint) string {
	return f.prefix + strconv.FormatUint(uint64(roomID), 10)
}

// RoomFromChannel parses the room id out of a channel name.
func (f *RedisFanout) RoomFromChannel(channel string) (uint, bool) {
	rest, ok := strings.CutPrefix(channel, f.prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Run listens on every room channel and delivers frames to the local
// registry until ctx is cancelled.
func (f *RedisFanout) Run(ctx context.Context) error {
	pubsub := f.client.PSubscribe(ctx, f.prefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before serving.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	f.log.Info("subscribed to room channels", "pattern", f.prefix+"*")

	ch := pubsub.Channel(redis.WithChannelSize(relayChannelSize))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.deliver(msg.Channel, msg.Payload)
		}
	}
}

func (f *RedisFanout) deliver(channel, payload string) int {
	roomID, ok := f.RoomFromChannel(channel)
	if !ok {
		f.log.Warn("ignoring message from unexpected channel", "channel", channel)
		return 0
	}
	var envelope relayEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil || len(envelope.Frame) == 0 {
		f.log.Warn("ignoring malformed relay message", "channel", channel, "error", err)
		return 0
	}
	if envelope.Origin == f.instanceID {
		return 0
	}
	return f.registry.Broadcast(roomID, envelope.Frame)
}
