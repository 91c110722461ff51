package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrQuotaExhausted is returned by Allow once the daily limit has been reached.
var ErrQuotaExhausted = errors.New("daily request quota exhausted")

// Prometheus metrics for quota tracking.
var (
	quotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gourmet_quota_used",
		Help: "Requests admitted against the daily quota",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gourmet_quota_blocks_total",
		Help: "Total number of requests refused because the daily quota is exhausted",
	})

	quotaWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gourmet_quota_warnings_total",
		Help: "Total number of requests admitted above the warning ratio",
	})
)

// admitScript increments the counter unless the limit is reached.
// Returns the new count, or -1 when the request is refused.
var admitScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used >= tonumber(ARGV[1]) then
	return -1
end
used = redis.call('INCR', KEYS[1])
if used == 1 then
	redis.call('EXPIREAT', KEYS[1], ARGV[2])
end
return used
`)

// Config holds quota settings.
type Config struct {
	// APIKey identifies the quota; only a hash of it is stored
	APIKey string

	// DailyLimit is the number of requests admitted per day
	DailyLimit int
}

// Tracker counts requests against the daily quota and gates them.
type Tracker struct {
	redis   *redis.Client
	keyHash string
	limit   int
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}

	sum := sha256.Sum256([]byte(cfg.APIKey))

	return &Tracker{
		redis:   redisClient,
		keyHash: hex.EncodeToString(sum[:])[:16],
		limit:   limit,
		logger:  logger,
		now:     time.Now,
	}
}

// key returns today's counter key and the time it expires.
func (t *Tracker) key() (string, time.Time) {
	day, next := quotaDay(t.now())
	return fmt.Sprintf("%s:%s:%s", RedisKeyPrefix, t.keyHash, day), next
}

// GetState retrieves today's usage from Redis.
// A day without requests reports zero usage.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	key, resetAt := t.key()

	used, err := t.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota usage: %w", err)
	}

	return &QuotaState{
		Used:    used,
		Limit:   t.limit,
		ResetAt: resetAt,
	}, nil
}

// Allow admits one request against today's quota.
// Returns ErrQuotaExhausted once the limit is reached; the refused request is not counted.
func (t *Tracker) Allow(ctx context.Context) error {
	key, resetAt := t.key()

	used, err := admitScript.Run(ctx, t.redis, []string{key}, t.limit, resetAt.Unix()).Int()
	if err != nil {
		return fmt.Errorf("update quota usage: %w", err)
	}

	if used < 0 {
		quotaBlocksTotal.Inc()
		quotaUsed.Set(float64(t.limit))
		t.logger.Error().
			Int("limit", t.limit).
			Time("reset_at", resetAt).
			Msg("Daily quota exhausted - blocking request")
		return ErrQuotaExhausted
	}

	quotaUsed.Set(float64(used))

	state := QuotaState{Used: used, Limit: t.limit, ResetAt: resetAt}
	if state.NearLimit() {
		quotaWarningsTotal.Inc()
		t.logger.Warn().
			Int("used", used).
			Int("limit", t.limit).
			Msg("Daily quota WARNING - approaching limit")
	}

	return nil
}
