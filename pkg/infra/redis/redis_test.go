package redis_wrapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfigOptions(t *testing.T) {
	cfg := &RedisConfig{
		ConnectionURL:      "redis://:secret@localhost:6380/2",
		PoolSize:           4,
		DialTimeoutSeconds: 3,
	}
	require.True(t, cfg.Enabled())

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)
}

func TestRedisConfigDisabled(t *testing.T) {
	var cfg *RedisConfig
	assert.False(t, cfg.Enabled())
	assert.False(t, (&RedisConfig{}).Enabled())

	_, err := (&RedisConfig{ConnectionURL: "http://nope"}).Options()
	assert.Error(t, err)
}
