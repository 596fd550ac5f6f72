package settings

import (
	"context"
	"errors"
	"fmt"

	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

const settingsKeyPrefix = "cgm:settings:"

type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (glucose.Settings, error) {
	data, err := s.client.Get(ctx, settingsKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return glucose.DefaultSettings(), nil
	}
	if err != nil {
		return glucose.Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	var out glucose.Settings
	if err := go_json.Unmarshal(data, &out); err != nil {
		return glucose.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, userID string, settings glucose.Settings) error {
	data, err := go_json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.client.Set(ctx, settingsKeyPrefix+userID, data, 0).Err(); err != nil {
		return fmt.Errorf("storing settings: %w", err)
	}
	return nil
}
