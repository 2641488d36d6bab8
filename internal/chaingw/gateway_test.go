package chaingw

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := defaultRetryPolicy()
	assert.Equal(t, 4*time.Second, p.backoff(1))
	assert.Equal(t, 8*time.Second, p.backoff(2))
	assert.Equal(t, 10*time.Second, p.backoff(3)) // capped below 16s
	assert.Equal(t, 10*time.Second, p.backoff(4))
}

func TestRetrySucceedsWithoutExhausting(t *testing.T) {
	p := defaultRetryPolicy()
	p.minBackoff = time.Millisecond
	p.maxBackoff = time.Millisecond

	attempts := 0
	got, err := retry(context.Background(), p, "test_op", func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 2 {
			return 0, assert.AnError
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustsAfterMaxAttempts(t *testing.T) {
	p := retryPolicy{minBackoff: time.Millisecond, maxBackoff: time.Millisecond, maxAttempts: 3}

	attempts := 0
	_, err := retry(context.Background(), p, "test_op", func(ctx context.Context) (int, error) {
		attempts++
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, errExhausted)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsCancellation(t *testing.T) {
	p := retryPolicy{minBackoff: time.Hour, maxBackoff: time.Hour, maxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan struct{})
	go func() {
		_, err := retry(ctx, p, "test_op", func(ctx context.Context) (int, error) {
			attempts++
			return 0, assert.AnError
		})
		assert.ErrorIs(t, err, context.Canceled)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, attempts)
}
