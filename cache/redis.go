package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"clearance-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const flashTTL = 10 * time.Minute

func InitRedis(logger *zap.Logger) (*redis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// GetRate returns an operator-set exchange-rate override, or 0 when none is set.
func GetRate(ctx context.Context, rdb *redis.Client, code string) (float64, error) {
	rate, err := rdb.Get(ctx, fmt.Sprintf("rates:%s", code)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return rate, err
}

func SetRate(ctx context.Context, rdb *redis.Client, code string, rate float64) error {
	return rdb.Set(ctx, fmt.Sprintf("rates:%s", code), rate, 0).Err()
}

// SetFlash queues a one-shot message for the user behind a form redirect.
func SetFlash(ctx context.Context, rdb *redis.Client, userID int, flash models.Flash) error {
	data, err := json.Marshal(flash)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, flashKey(userID), data, flashTTL).Err()
}

// PopFlash returns and clears the user's queued message, nil when there is none.
func PopFlash(ctx context.Context, rdb *redis.Client, userID int) (*models.Flash, error) {
	data, err := rdb.GetDel(ctx, flashKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var flash models.Flash
	if err := json.Unmarshal(data, &flash); err != nil {
		return nil, err
	}
	return &flash, nil
}

func flashKey(userID int) string {
	return fmt.Sprintf("flash:%d", userID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
