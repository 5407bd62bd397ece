package cache

import (
	"context"
	"fmt"
	"time"
)

// UserCache tracks per-user counters and profile blobs. Download counters
// live under a date-scoped key so the daily limit resets at midnight UTC.
type UserCache struct {
	store *TwoTier
	now   func() time.Time
}

func NewUserCache(store *TwoTier) *UserCache {
	return &UserCache{store: store, now: time.Now}
}

func downloadsKey(userID string, day time.Time) string {
	return fmt.Sprintf("downloads:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

// untilMidnightUTC keeps the counter alive exactly through the current day.
func untilMidnightUTC(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

// IncrementDownloads bumps today's counter and returns the new total.
func (u *UserCache) IncrementDownloads(ctx context.Context, userID string) (int64, error) {
	now := u.now()
	return u.store.Increment(ctx, TypeUserLimits, downloadsKey(userID, now), 1, untilMidnightUTC(now))
}

// DownloadsToday reads the counter without changing it.
func (u *UserCache) DownloadsToday(ctx context.Context, userID string) (int64, error) {
	now := u.now()
	return u.store.Increment(ctx, TypeUserLimits, downloadsKey(userID, now), 0, untilMidnightUTC(now))
}

func (u *UserCache) SetUserData(ctx context.Context, userID string, value interface{}) error {
	return u.store.Set(ctx, TypeUserData, userID, value)
}

func (u *UserCache) GetUserData(ctx context.Context, userID string, dest interface{}) (bool, error) {
	return u.store.Get(ctx, TypeUserData, userID, dest)
}
