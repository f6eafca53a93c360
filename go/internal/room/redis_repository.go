package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds connection and retry settings for the Redis store.
type RedisConfig struct {
	URL             string
	TTL             time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
}

// DefaultRedisConfig returns the retry policy used in production: three
// retries per command with backoff growing from 50ms and capped at 2s.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:             url,
		TTL:             DefaultTTL,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
		DialTimeout:     5 * time.Second,
	}
}

// NewRedisClient parses the URL (rediss:// enables TLS) and applies the retry policy.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		log.Info().Str("addr", opts.Addr).Msg("connected to redis")
		return nil
	}

	return redis.NewClient(opts), nil
}

// RedisRepository stores each room as a JSON document under room:<CODE>.
type RedisRepository struct {
	client redis.Cmdable
	clock  clockwork.Clock
	ttl    time.Duration
}

// NewRedisRepository creates a Redis-backed room store.
func NewRedisRepository(client redis.Cmdable, clock clockwork.Clock, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRepository{
		client: client,
		clock:  clock,
		ttl:    ttl,
	}
}

// CreateRoom stores a new empty room with a TTL, or returns the existing one untouched.
func (r *RedisRepository) CreateRoom(ctx context.Context, code string) (*models.Room, error) {
	room := models.NewRoom(code, r.clock.Now())
	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room: %w", err)
	}

	created, err := r.client.SetNX(ctx, roomKey(code), data, r.ttl).Result()
	if err != nil {
		return nil, unavailable("create room", err)
	}
	if created {
		return room, nil
	}
	return r.GetRoom(ctx, code)
}

// GetRoom returns ErrRoomNotFound for absent or expired rooms.
func (r *RedisRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	data, err := r.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, unavailable("get room", err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room %s: %w", code, err)
	}
	if room.Members == nil {
		room.Members = []models.Member{}
	}
	return &room, nil
}

// UpdateRoom replaces the stored room and keeps its TTL countdown running.
// Rooms that already expired are not resurrected.
func (r *RedisRepository) UpdateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	err = r.client.SetArgs(ctx, roomKey(room.Code), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrRoomNotFound
	}
	if err != nil {
		return unavailable("update room", err)
	}
	return nil
}

// DeleteRoom removes the room; deleting an absent room is not an error.
func (r *RedisRepository) DeleteRoom(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, roomKey(code)).Err(); err != nil {
		return unavailable("delete room", err)
	}
	return nil
}

// RoomExists reports whether the room is stored.
func (r *RedisRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	n, err := r.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return false, unavailable("check room", err)
	}
	return n > 0, nil
}

// ListRooms scans the keyspace for room keys.
func (r *RedisRepository) ListRooms(ctx context.Context) ([]string, error) {
	var codes []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list rooms", err)
	}
	return codes, nil
}

// CleanupRoom prunes inactive members of one room and deletes it when empty past the grace period.
func (r *RedisRepository) CleanupRoom(ctx context.Context, code string, inactivityTimeout time.Duration) (CleanupResult, error) {
	room, err := r.GetRoom(ctx, code)
	if err != nil {
		return CleanupResult{Code: code}, err
	}

	result := pruneRoom(room, r.clock.Now(), inactivityTimeout)
	switch {
	case result.Deleted:
		err = r.DeleteRoom(ctx, code)
	case result.RemovedMembers > 0:
		err = r.UpdateRoom(ctx, room)
	}
	return result, err
}

// CleanupInactiveMembers sweeps every stored room.
func (r *RedisRepository) CleanupInactiveMembers(ctx context.Context, inactivityTimeout time.Duration) (CleanupReport, error) {
	return cleanupAll(ctx, r, func(ctx context.Context, code string) (CleanupResult, error) {
		return r.CleanupRoom(ctx, code, inactivityTimeout)
	})
}

// unavailable classifies a backend error. Context cancellation and
// deadlines belong to the caller and are passed through unwrapped.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
