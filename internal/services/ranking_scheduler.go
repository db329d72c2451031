package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/metrics"
)

const doneMarkerTTL = 45 * 24 * time.Hour

// releaseLockScript deletes the lock only while it still holds this instance's id.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RankingScheduler ranks the last closed month on every tick. When Redis is available
// a per-month lock keeps replicas from doing the same work; without it the idempotent
// writes still converge.
type RankingScheduler struct {
	ranking    *RankingService
	redis      *redis.Client
	loc        *time.Location
	interval   time.Duration
	lockTTL    time.Duration
	instanceID string
	now        func() time.Time

	mu        sync.Mutex
	lastMonth string
}

func NewRankingScheduler(ranking *RankingService, redisClient *redis.Client, points config.PointsConfig, cfg config.RankingConfig) *RankingScheduler {
	loc := points.Location
	if loc == nil {
		loc = time.Local
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &RankingScheduler{
		ranking:    ranking,
		redis:      redisClient,
		loc:        loc,
		interval:   interval,
		lockTTL:    lockTTL,
		instanceID: uuid.NewString(),
		now:        time.Now,
	}
}

// Start runs Tick once immediately and then on every interval until ctx is done.
func (rs *RankingScheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rs.interval)
		defer ticker.Stop()

		rs.tickAndLog(ctx)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[RANKING] Scheduler stopped")
				return
			case <-ticker.C:
				rs.tickAndLog(ctx)
			}
		}
	}()
}

func (rs *RankingScheduler) tickAndLog(ctx context.Context) {
	if _, err := rs.Tick(ctx); err != nil {
		log.Printf("[RANKING] Scheduled run failed: %v", err)
	}
}

// Tick ranks the previous calendar month unless this instance or another one already
// did. It reports whether a ranking run was performed.
func (rs *RankingScheduler) Tick(ctx context.Context) (bool, error) {
	start, end := PreviousMonthBounds(rs.now(), rs.loc)
	key := MonthKey(start)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastMonth == key {
		return false, nil
	}

	if rs.redis != nil {
		done, err := rs.redis.Exists(ctx, doneKey(key)).Result()
		if err != nil {
			return false, fmt.Errorf("failed to check ranking marker: %w", err)
		}
		if done > 0 {
			rs.lastMonth = key
			metrics.RankingRuns.WithLabelValues("skipped").Inc()
			return false, nil
		}

		acquired, err := rs.redis.SetNX(ctx, lockKey(key), rs.instanceID, rs.lockTTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to acquire ranking lock: %w", err)
		}
		if !acquired {
			log.Printf("[RANKING] %s is being ranked by another instance", key)
			metrics.RankingRuns.WithLabelValues("skipped").Inc()
			return false, nil
		}
		defer rs.releaseLock(key)
	}

	if _, err := rs.ranking.RunRanking(ctx, start, end); err != nil {
		return false, err
	}
	rs.lastMonth = key

	if rs.redis != nil {
		if err := rs.redis.Set(ctx, doneKey(key), "done", doneMarkerTTL).Err(); err != nil {
			log.Printf("[RANKING] Failed to store done marker for %s: %v", key, err)
		}
	}
	return true, nil
}

func (rs *RankingScheduler) releaseLock(month string) {
	released, err := releaseLockScript.Run(context.Background(), rs.redis, []string{lockKey(month)}, rs.instanceID).Int()
	if err != nil {
		log.Printf("[RANKING] Failed to release lock for %s: %v", month, err)
		return
	}
	if released == 0 {
		log.Printf("[RANKING] Lock for %s expired before release and was left alone", month)
	}
}

func lockKey(month string) string {
	return "ranking:lock:" + month
}

func doneKey(month string) string {
	return "ranking:done:" + month
}
