package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()
	key := "acme/widgets-" + uuid.NewString()

	unlock, err := l.TryLock(ctx, key)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, key)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.TryLock(ctx, key+"-other")
	require.NoError(t, err, "different keys do not conflict")
	other()

	unlock()
	unlock() // releasing twice is harmless

	again, err := l.TryLock(ctx, key)
	require.NoError(t, err)
	again()
}

func TestMemoryLocker(t *testing.T) {
	testLocker(t, NewMemory())
}

func TestMemoryLockerSingleWinner(t *testing.T) {
	l := NewMemory()
	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryLock(context.Background(), "acme/widgets"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners)
}

func TestMemoryLockerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().TryLock(ctx, "acme/widgets")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := NewRedisFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	defer l.Close()

	testLocker(t, l)
}
