package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/logger"
)

// Class names a request budget. Each class has its own limit and window,
// counted per client key.
type Class string

const (
	// ClassGeneral covers read endpoints.
	ClassGeneral Class = "general"
	// ClassClaim covers claim submissions, which are far more expensive.
	ClassClaim Class = "claim"
)

const redisKeyPrefix = "aperture:limiter:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces per-client request budgets.
//
//go:generate mockgen -source=limiter.go -destination=../mocks/ratelimit.go -package=mocks -mock_names=Limiter=MockLimiter
type Limiter interface {
	// Allow consumes one unit of the class budget for the given client key.
	Allow(ctx context.Context, key string, class Class) Decision

	// Close releases limiter resources.
	Close() error
}

// ClassConfig is one class budget: Limit events per Window.
type ClassConfig struct {
	Limit  int
	Window time.Duration
}

// Config configures the limiter.
type Config struct {
	Classes map[Class]ClassConfig
}

// limiter counts against Redis when available so budgets hold across
// replicas, and falls back to per-process local limiters when it is not.
// Local fallback over-admits by up to the replica count, which is acceptable
// degradation for an availability win.
type limiter struct {
	config      Config
	distributed adapter.RedisRateLimiter
	redis       adapter.RedisClient
	clock       adapter.Clock

	mu     sync.Mutex
	local  map[string]*rate.Limiter // key: class + client key
	closed atomic.Bool

	redisAvailable atomic.Bool
}

// New creates a Limiter. rc may be nil, in which case only local limiting
// applies.
func New(cfg Config, rc adapter.RedisClient, clock adapter.Clock) (Limiter, error) {
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("at least one rate limit class must be configured")
	}
	for class, cc := range cfg.Classes {
		if cc.Limit <= 0 || cc.Window <= 0 {
			return nil, fmt.Errorf("class %s: limit and window must be positive", class)
		}
	}

	l := &limiter{
		config: cfg,
		redis:  rc,
		clock:  clock,
		local:  make(map[string]*rate.Limiter),
	}

	if rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, rate limiting falls back to local", zap.Error(err))
		} else {
			l.redisAvailable.Store(true)
		}
		l.distributed = rc.NewRateLimiter()

		go l.monitorRedisHealth()
	}

	return l, nil
}

// Allow consumes one unit of the class budget. Redis failures degrade to the
// local limiter rather than rejecting traffic.
func (l *limiter) Allow(ctx context.Context, key string, class Class) Decision {
	cc, ok := l.config.Classes[class]
	if !ok {
		// Unknown class: fail open, but loudly.
		logger.Warn("Unknown rate limit class", zap.String("class", string(class)))
		return Decision{Allowed: true}
	}

	if l.distributed != nil && l.redisAvailable.Load() {
		res, err := l.distributed.Allow(ctx, redisKeyPrefix+string(class)+":"+key, redis_rate.Limit{
			Rate:   cc.Limit,
			Burst:  cc.Limit,
			Period: cc.Window,
		})
		if err != nil {
			l.redisAvailable.Store(false)
			logger.Warn("Redis rate limiter error, falling back to local",
				zap.String("class", string(class)),
				zap.Error(err),
			)
		} else if res.Allowed > 0 {
			return Decision{Allowed: true}
		} else {
			return Decision{Allowed: false, RetryAfter: res.RetryAfter}
		}
	}

	lim := l.localLimiter(key, class, cc)
	if lim.Allow() {
		return Decision{Allowed: true}
	}

	// rate.Limiter has no retry-after; approximate with the refill interval.
	return Decision{Allowed: false, RetryAfter: cc.Window / time.Duration(cc.Limit)}
}

func (l *limiter) localLimiter(key string, class Class, cc ClassConfig) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	mapKey := string(class) + ":" + key
	lim, ok := l.local[mapKey]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(cc.Limit)/cc.Window.Seconds()), cc.Limit)
		l.local[mapKey] = lim
	}
	return lim
}

// monitorRedisHealth periodically checks Redis health and updates availability status
func (l *limiter) monitorRedisHealth() {
	ticker := l.clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		if l.closed.Load() {
			return
		}

		<-ticker.C

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := l.redis.Ping(ctx).Err()
		cancel()

		redisAvailable := err == nil
		wasAvailable := l.redisAvailable.Load()
		l.redisAvailable.Store(redisAvailable)

		if !wasAvailable && redisAvailable {
			logger.Info("Redis connection restored")
		}
	}
}

// Close releases limiter resources.
func (l *limiter) Close() error {
	l.closed.Store(true)
	if l.redis != nil {
		return l.redis.Close()
	}
	return nil
}
