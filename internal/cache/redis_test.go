package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisCache_SetGetRoundTrip_MemoryOnly(t *testing.T) {
	c := NewRedisCache(DefaultCacheConfig())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestRedisCache_GetMissingKey(t *testing.T) {
	c := NewRedisCache(DefaultCacheConfig())
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_GetOrSetJSON(t *testing.T) {
	c := NewRedisCache(DefaultCacheConfig())
	defer c.Close()
	ctx := context.Background()

	type payload struct{ N int }
	calls := 0
	loader := func() (interface{}, error) {
		calls++
		return payload{N: 7}, nil
	}

	var dest payload
	require.NoError(t, c.GetOrSetJSON(ctx, "p", time.Minute, &dest, loader))
	require.Equal(t, 7, dest.N)
	require.Equal(t, 1, calls)

	var dest2 payload
	require.NoError(t, c.GetOrSetJSON(ctx, "p", time.Minute, &dest2, loader))
	require.Equal(t, 7, dest2.N)
	require.Equal(t, 1, calls) // second call served from cache
}

func TestRedisCache_DeletePattern(t *testing.T) {
	c := NewRedisCache(DefaultCacheConfig())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "game:1:eligible_bots", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "game:1:bot_counts", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "game:2:eligible_bots", []byte("c"), time.Minute))

	require.NoError(t, c.DeletePattern(ctx, GameEligibilityPattern(1)))

	_, err := c.Get(ctx, "game:1:eligible_bots")
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "game:2:eligible_bots")
	require.NoError(t, err)
}

func TestCacheKeyHelpers(t *testing.T) {
	require.Equal(t, "game:5:eligible_bots", EligibleBotsCacheKey(5))
	require.Equal(t, "game:5:bot_counts", BotCountsCacheKey(5))
	require.Equal(t, "game:5:*", GameEligibilityPattern(5))
}
