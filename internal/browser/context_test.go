// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type ctxKey string

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("values come from the primary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), ctxKey("tab"), "t1")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "t1", combined.Value(ctxKey("tab")))
		assert.NoError(t, combined.Err())
	})

	t.Run("canceled by primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		secondary, cancelSecondary := context.WithCancel(context.Background())
		defer cancelSecondary()
		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		cancelPrimary()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("canceled by secondary deadline", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelSecondary()
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context outlived the secondary deadline")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("explicit cancel stops the watcher", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		defer cancelSecondary()
		combined, cancel := CombineContext(context.Background(), secondary)
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := withTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	ctx2, cancel2 := withTimeout(context.Background(), time.Minute)
	defer cancel2()
	_, ok = ctx2.Deadline()
	assert.True(t, ok)
}
