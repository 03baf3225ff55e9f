package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/lei/pipeline-trigger/internal/models"
)

const submissionKeyPrefix = "pipelinetrigger:submission:"

// Redis stores submission records as JSON values with an expiry
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // Zero keeps records forever
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisWithClient(client, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func submissionKey(id string) string {
	return submissionKeyPrefix + id
}

func (r *Redis) Save(ctx context.Context, record *models.SubmissionRecord) error {
	content, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal submission %s: %w", record.ID, err)
	}

	if err := r.client.WithContext(ctx).Set(submissionKey(record.ID), string(content), r.ttl).Err(); err != nil {
		return fmt.Errorf("save submission %s: %w", record.ID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	content, err := r.client.WithContext(ctx).Get(submissionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", id, err)
	}

	var record models.SubmissionRecord
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", id, err)
	}
	return &record, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
