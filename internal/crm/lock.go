package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fieldlinehq/fieldline/pkg/logging"
)

const lockRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lock key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SenderLock serializes the resolution cascade per (account, sender) so two
// concurrent deliveries from the same number do not both take the
// find-then-create path. It is advisory: the unique constraints are the
// backstop, the lock just avoids burning work record numbers on conflicts.
type SenderLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewSenderLock(client *redis.Client, ttl time.Duration, logger *logging.Logger) *SenderLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SenderLock{client: client, ttl: ttl, logger: logger}
}

// Acquire blocks until the lock is held, the TTL window elapses, or ctx is
// done. The returned release func is always safe to call. A nil SenderLock
// acquires nothing and releases nothing.
func (l *SenderLock) Acquire(ctx context.Context, accountID uuid.UUID, sender string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("fieldline:sender-lock:%s:%s", accountID, sender)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return func() {}, fmt.Errorf("crm: acquire sender lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
					l.logger.Warn("failed to release sender lock", "error", err, "key", key)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("crm: sender lock busy: %s", key)
		}
		select {
		case <-ctx.Done():
			return func() {}, fmt.Errorf("crm: acquire sender lock: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}
