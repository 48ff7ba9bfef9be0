package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/pullover/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultQuotaLimit  int64 = 60
	defaultQuotaWindow       = time.Minute
	quotaKeyPrefix           = "pullover:quota"
)

// quotaScript increments the window counter and returns its new value.
var quotaScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

var _ ratelimit.Limiter = (*RecipientQuota)(nil)

// RecipientQuota caps relayed sends per user key in fixed windows shared
// through Redis. Keys store a digest of the user key, never the key itself.
type RecipientQuota struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	script *goredis.Script
}

func NewRecipientQuota(client *goredis.Client, limit int, window time.Duration) (*RecipientQuota, error) {
	return newRecipientQuota(client, int64(limit), window, time.Now)
}

func newRecipientQuota(
	client *goredis.Client,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
) (*RecipientQuota, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultQuotaLimit
	}
	if window < time.Millisecond {
		window = defaultQuotaWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RecipientQuota{
		client: client,
		limit:  limit,
		window: window,
		now:    nowFn,
		script: quotaScript,
	}, nil
}

func (q *RecipientQuota) Allow(ctx context.Context, recipient string) (ratelimit.Decision, error) {
	if q == nil || q.client == nil || q.script == nil {
		return ratelimit.Decision{}, fmt.Errorf("recipient quota is not initialized")
	}

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ratelimit.Decision{}, fmt.Errorf("recipient is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	now := q.now()
	windowMillis := q.window.Milliseconds()
	bucket := now.UnixMilli() / windowMillis
	key := fmt.Sprintf("%s:%s:%d", quotaKeyPrefix, fingerprint(recipient), bucket)

	count, err := q.script.Run(ctx, q.client, []string{key}, windowMillis).Int64()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("failed to evaluate recipient quota: %w", err)
	}

	if count > q.limit {
		windowEnd := time.UnixMilli((bucket + 1) * windowMillis)
		return ratelimit.Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowEnd.Sub(now),
		}, nil
	}

	return ratelimit.Decision{
		Allowed:   true,
		Remaining: q.limit - count,
	}, nil
}

func fingerprint(recipient string) string {
	sum := sha256.Sum256([]byte(recipient))
	return hex.EncodeToString(sum[:8])
}
