package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"greendrake/rentals/internal/config"
)

func TestPing_NilClient(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}

func TestPing_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, Ping(ctx, rdb))
}

func TestConnectRedis_Unreachable(t *testing.T) {
	_, err := ConnectRedis(&config.Config{RedisAddr: "127.0.0.1:1"})
	assert.ErrorContains(t, err, "127.0.0.1:1")
}

func TestDisconnectRedis_Nil(t *testing.T) {
	assert.NoError(t, DisconnectRedis(nil))
}
