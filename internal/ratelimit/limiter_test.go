package ratelimit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/golang/mock/gomock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/mocks"
	"github.com/halide-works/aperture-drop/internal/ratelimit"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func testConfig() ratelimit.Config {
	return ratelimit.Config{
		Classes: map[ratelimit.Class]ratelimit.ClassConfig{
			ratelimit.ClassGeneral: {Limit: 3, Window: time.Hour},
			ratelimit.ClassClaim:   {Limit: 1, Window: time.Hour},
		},
	}
}

type limiterMocks struct {
	redis       *mocks.MockRedisClient
	distributed *mocks.MockRedisRateLimiter
	clock       *mocks.MockClock
}

func setupRedisLimiter(t *testing.T, pingErr error) (ratelimit.Limiter, *limiterMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	m := &limiterMocks{
		redis:       mocks.NewMockRedisClient(ctrl),
		distributed: mocks.NewMockRedisRateLimiter(ctrl),
		clock:       mocks.NewMockClock(ctrl),
	}

	ping := redis.NewStatusCmd(context.Background())
	if pingErr != nil {
		ping.SetErr(pingErr)
	}
	m.redis.EXPECT().Ping(gomock.Any()).Return(ping)
	m.redis.EXPECT().NewRateLimiter().Return(m.distributed)
	m.redis.EXPECT().Close().Return(nil).AnyTimes()

	// The health monitor parks on a ticker that never fires in tests.
	m.clock.EXPECT().NewTicker(10*time.Second).Return(time.NewTicker(time.Hour)).AnyTimes()

	l, err := ratelimit.New(testConfig(), m.redis, m.clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, m
}

func TestNew_Validation(t *testing.T) {
	t.Run("requires at least one class", func(t *testing.T) {
		_, err := ratelimit.New(ratelimit.Config{}, nil, adapter.NewClock())
		assert.ErrorContains(t, err, "at least one rate limit class")
	})

	t.Run("rejects non-positive budgets", func(t *testing.T) {
		_, err := ratelimit.New(ratelimit.Config{
			Classes: map[ratelimit.Class]ratelimit.ClassConfig{
				ratelimit.ClassGeneral: {Limit: 0, Window: time.Hour},
			},
		}, nil, adapter.NewClock())
		assert.ErrorContains(t, err, "limit and window must be positive")
	})
}

func TestLimiter_Local(t *testing.T) {
	ctx := context.Background()

	t.Run("budget admits up to the limit", func(t *testing.T) {
		l, err := ratelimit.New(testConfig(), nil, adapter.NewClock())
		require.NoError(t, err)
		defer l.Close()

		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
		}

		d := l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral)
		assert.False(t, d.Allowed)
		assert.Equal(t, 20*time.Minute, d.RetryAfter)
	})

	t.Run("keys are budgeted independently", func(t *testing.T) {
		l, err := ratelimit.New(testConfig(), nil, adapter.NewClock())
		require.NoError(t, err)
		defer l.Close()

		require.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
		assert.False(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
		assert.True(t, l.Allow(ctx, "5.6.7.8", ratelimit.ClassClaim).Allowed)
	})

	t.Run("classes are budgeted independently", func(t *testing.T) {
		l, err := ratelimit.New(testConfig(), nil, adapter.NewClock())
		require.NoError(t, err)
		defer l.Close()

		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
		assert.False(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
	})

	t.Run("unknown class fails open", func(t *testing.T) {
		l, err := ratelimit.New(testConfig(), nil, adapter.NewClock())
		require.NoError(t, err)
		defer l.Close()

		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.Class("mystery")).Allowed)
	})
}

func TestLimiter_Distributed(t *testing.T) {
	ctx := context.Background()

	t.Run("counts against redis with the class budget", func(t *testing.T) {
		l, m := setupRedisLimiter(t, nil)

		m.distributed.EXPECT().
			Allow(ctx, "aperture:limiter:general:1.2.3.4", redis_rate.Limit{Rate: 3, Burst: 3, Period: time.Hour}).
			Return(&redis_rate.Result{Allowed: 1}, nil)

		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
	})

	t.Run("denial carries redis retry-after", func(t *testing.T) {
		l, m := setupRedisLimiter(t, nil)

		m.distributed.EXPECT().
			Allow(ctx, gomock.Any(), gomock.Any()).
			Return(&redis_rate.Result{Allowed: 0, RetryAfter: 42 * time.Second}, nil)

		d := l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral)
		assert.False(t, d.Allowed)
		assert.Equal(t, 42*time.Second, d.RetryAfter)
	})

	t.Run("redis errors fall back to local and stay local", func(t *testing.T) {
		l, m := setupRedisLimiter(t, nil)

		m.distributed.EXPECT().
			Allow(ctx, gomock.Any(), gomock.Any()).
			Return(nil, assert.AnError).
			Times(1)

		// First call degrades, later calls go straight to the local limiter.
		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
		assert.False(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassGeneral).Allowed)
	})

	t.Run("unreachable redis at startup uses local from the first call", func(t *testing.T) {
		l, _ := setupRedisLimiter(t, assert.AnError)

		assert.True(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
		assert.False(t, l.Allow(ctx, "1.2.3.4", ratelimit.ClassClaim).Allowed)
	})
}

func TestLimiter_Close(t *testing.T) {
	t.Run("closes the redis client", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rc := mocks.NewMockRedisClient(ctrl)
		distributed := mocks.NewMockRedisRateLimiter(ctrl)
		clock := mocks.NewMockClock(ctrl)

		ping := redis.NewStatusCmd(context.Background())
		rc.EXPECT().Ping(gomock.Any()).Return(ping)
		rc.EXPECT().NewRateLimiter().Return(distributed)
		rc.EXPECT().Close().Return(nil)
		clock.EXPECT().NewTicker(gomock.Any()).Return(time.NewTicker(time.Hour)).AnyTimes()

		l, err := ratelimit.New(testConfig(), rc, clock)
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})

	t.Run("nil redis closes cleanly", func(t *testing.T) {
		l, err := ratelimit.New(testConfig(), nil, adapter.NewClock())
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})
}
