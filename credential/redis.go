package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces Redis keys and the change channel.
const DefaultKeyPrefix = "authstate"

// RedisBackend stores credentials in Redis and fans change notifications out over a
// pub/sub channel, so every process sharing the instance observes each other's writes.
type RedisBackend struct {
	redis   redis.UniversalClient
	prefix  string
	channel string
	logger  *zap.Logger
}

// NewRedisBackend creates a backend over client. Keys are stored as "<prefix>:<KEY>" and
// changes are published on "<prefix>:changes".
func NewRedisBackend(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		redis:   client,
		prefix:  prefix,
		channel: prefix + ":changes",
		logger:  logger.Named("credential.redis"),
	}
}

func (b *RedisBackend) key(name string) string {
	return b.prefix + ":" + name
}

// Channel returns the pub/sub channel carrying change notifications.
func (b *RedisBackend) Channel() string {
	return b.channel
}

// GetMany reads keys with a single MGET. Missing keys are absent from the result.
func (b *RedisBackend) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = b.key(k)
	}

	values, err := b.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			out[keys[i]] = s
		case []byte:
			out[keys[i]] = string(s)
		default:
			out[keys[i]] = fmt.Sprint(s)
		}
	}
	return out, nil
}

// SetMany writes values and publishes their changes inside one MULTI/EXEC block.
func (b *RedisBackend) SetMany(ctx context.Context, origin string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()

	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, b.key(k), v, 0)
		}
		for k := range values {
			msg, err := encodeChange(Change{Key: k, Origin: origin, At: now})
			if err != nil {
				return err
			}
			pipe.Publish(ctx, b.channel, msg)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteMany removes keys and publishes their changes inside one MULTI/EXEC block.
func (b *RedisBackend) DeleteMany(ctx context.Context, origin string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now()

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = b.key(k)
	}

	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeys...)
		for _, k := range keys {
			msg, err := encodeChange(Change{Key: k, Origin: origin, At: now})
			if err != nil {
				return err
			}
			pipe.Publish(ctx, b.channel, msg)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription on the change channel. The returned channel is
// closed once ctx is done or the subscription breaks.
func (b *RedisBackend) Subscribe(ctx context.Context) (<-chan Change, error) {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make(chan Change, 16)
	messages := pubsub.Channel()

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				change, err := decodeChange(msg.Payload)
				if err != nil {
					b.logger.Warn("dropping malformed change notification", zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping reports Redis availability and round-trip latency.
func (b *RedisBackend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeChange(c Change) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, err
	}
	if c.Key == "" {
		return Change{}, errors.New("change without key")
	}
	return c, nil
}
