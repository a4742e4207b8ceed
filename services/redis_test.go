package services

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolshare/admin_api/model"
)

func TestRedisDisabled(t *testing.T) {
	var missing *RedisService
	assert.False(t, missing.Enabled())

	svc := &RedisService{}
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Start())

	_, err := svc.AcquireOnce(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrRedisDisabled)
	assert.ErrorIs(t, svc.Release(context.Background(), "k"), ErrRedisDisabled)
}

func TestEscalationFallsBackWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	rdb := &RedisService{}
	rdb.UseClient(client)
	require.True(t, rdb.Enabled())

	f := newBlocklistFixture(t)
	svc := NewEscalationService(f.securityLog, f.blocklist, rdb, EscalationConfig{Threshold: 1})

	require.NoError(t, svc.Handle(context.Background(), Violation{IP: "203.0.113.20", WindowCount: 2, Limit: 1}))

	record, err := f.repo.FindActiveByIP(context.Background(), "203.0.113.20")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.BlockReasonAutomatedBlock, record.Reason)
}
