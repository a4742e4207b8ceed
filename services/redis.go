package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var ErrRedisDisabled = errors.New("redis client not initialized")

// RedisService is optional. With REDIS_ADDR unset every call returns
// ErrRedisDisabled and callers fall back to in-process coordination.
type RedisService struct {
	appContext.DefaultService
	redis *redis.Client
}

const REDIS_SVC = "redis_svc"

func (svc *RedisService) Id() string {
	return REDIS_SVC
}

func (svc *RedisService) Configure(ctx *appContext.Context) error {
	svc.initRedisClient()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RedisService) Start() error {
	if svc.redis == nil {
		log.Info("REDIS_ADDR not set, escalation dedupe stays in-process")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := svc.redis.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (svc *RedisService) Shutdown() {
	if svc.redis != nil {
		svc.redis.Close()
	}
}

func (svc *RedisService) initRedisClient() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	svc.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
}

// UseClient swaps in an existing client.
func (svc *RedisService) UseClient(client *redis.Client) {
	svc.redis = client
}

func (svc *RedisService) Enabled() bool {
	return svc != nil && svc.redis != nil
}

// AcquireOnce sets key only if it is absent. It reports whether this caller
// now owns the key until ttl elapses or Release is called.
func (svc *RedisService) AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !svc.Enabled() {
		return false, ErrRedisDisabled
	}

	return svc.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (svc *RedisService) Release(ctx context.Context, keys ...string) error {
	if !svc.Enabled() {
		return ErrRedisDisabled
	}

	return svc.redis.Del(ctx, keys...).Err()
}
