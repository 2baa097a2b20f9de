package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// WriterKey - holds the token of the only process allowed to commit moves.
const WriterKey = "matchsync:writer"

type RedisStorage struct {
	Connection *redis.Client
}

func NewRedisStorage(ctx context.Context, addr, password string, db int) (*RedisStorage, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	_, err := conn.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{Connection: conn}, nil
}

// RegisterWriter - only commits presenting this token are accepted by the move script.
func (that *RedisStorage) RegisterWriter(ctx context.Context, token string) error {
	if err := that.Connection.Set(ctx, WriterKey, token, 0).Err(); err != nil {
		return fmt.Errorf("failed to register writer: %w", err)
	}

	return nil
}

func (that *RedisStorage) Ping(ctx context.Context) error {
	return that.Connection.Ping(ctx).Err()
}

func (that *RedisStorage) Close() error {
	return that.Connection.Close()
}
