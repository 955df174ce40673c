package crm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fieldlinehq/fieldline/pkg/logging"
)

func newLockClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSenderLockAcquireRelease(t *testing.T) {
	client := newLockClient(t)
	lock := NewSenderLock(client, time.Second, logging.New("error"))
	accountID := uuid.New()

	release, err := lock.Acquire(context.Background(), accountID, "4165550001")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	// Released lock can be taken again immediately.
	release2, err := lock.Acquire(context.Background(), accountID, "4165550001")
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	release2()
}

func TestSenderLockContention(t *testing.T) {
	client := newLockClient(t)
	lock := NewSenderLock(client, 200*time.Millisecond, logging.New("error"))
	accountID := uuid.New()

	release, err := lock.Acquire(context.Background(), accountID, "4165550001")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := lock.Acquire(context.Background(), accountID, "4165550001"); err == nil {
		t.Fatalf("expected busy error while lock held")
	}

	// A different sender is unaffected.
	releaseOther, err := lock.Acquire(context.Background(), accountID, "4165550002")
	if err != nil {
		t.Fatalf("acquire other sender: %v", err)
	}
	releaseOther()
}

func TestSenderLockReleaseIgnoresStolenKey(t *testing.T) {
	client := newLockClient(t)
	lock := NewSenderLock(client, time.Second, logging.New("error"))
	accountID := uuid.New()

	release, err := lock.Acquire(context.Background(), accountID, "4165550001")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate TTL expiry plus takeover by another holder.
	key := "fieldline:sender-lock:" + accountID.String() + ":4165550001"
	if err := client.Set(context.Background(), key, "other-token", time.Second).Err(); err != nil {
		t.Fatalf("seed takeover: %v", err)
	}
	release()

	val, err := client.Get(context.Background(), key).Result()
	if err != nil || val != "other-token" {
		t.Fatalf("release must not delete another holder's lock, got %q err=%v", val, err)
	}
}

func TestSenderLockNilSafe(t *testing.T) {
	var lock *SenderLock
	release, err := lock.Acquire(context.Background(), uuid.New(), "4165550001")
	if err != nil {
		t.Fatalf("nil lock must be a no-op, got %v", err)
	}
	release()
}
