package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisMirror publishes the local presence table to Redis: the online set
// lives at <prefix>:online and every snapshot goes to <prefix>:presence.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

func NewRedisMirror(ctx context.Context, cfg RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisMirror{client: client, prefix: prefix}, nil
}

func (m *RedisMirror) OnlineKey() string      { return m.prefix + ":online" }
func (m *RedisMirror) PresenceChannel() string { return m.prefix + ":presence" }

// Reset clears the online set. Presence is process scoped, so whatever a
// previous run left behind is stale.
func (m *RedisMirror) Reset(ctx context.Context) error {
	if err := m.client.Del(ctx, m.OnlineKey()).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", m.OnlineKey(), err)
	}
	return nil
}

func (m *RedisMirror) Online(ctx context.Context, user string) error {
	if err := m.client.SAdd(ctx, m.OnlineKey(), user).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (m *RedisMirror) Offline(ctx context.Context, user string) error {
	if err := m.client.SRem(ctx, m.OnlineKey(), user).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

func (m *RedisMirror) Publish(ctx context.Context, users []string) error {
	data, err := json.Marshal(users)
	if err != nil {
		return err
	}
	if err := m.client.Publish(ctx, m.PresenceChannel(), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Members reads the mirrored online set.
func (m *RedisMirror) Members(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, m.OnlineKey()).Result()
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
