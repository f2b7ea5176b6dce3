package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailService_EnqueueResetMail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := NewMailService(rdb, "test_mail_queue")
	ctx := context.Background()

	require.NoError(t, svc.EnqueueResetMail(ctx, "alice@example.com", "token-abc"))

	raw, err := rdb.RPop(ctx, "test_mail_queue").Result()
	require.NoError(t, err)

	var job ResetMailJob
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "alice@example.com", job.ToAddress)
	assert.Equal(t, "token-abc", job.ResetToken)
	assert.NotEmpty(t, job.ID)
}

func TestMailService_EnqueueFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	svc := NewMailService(rdb, "test_mail_queue")
	err := svc.EnqueueResetMail(context.Background(), "alice@example.com", "token-abc")
	assert.Error(t, err)
}
