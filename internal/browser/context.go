// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is also canceled when
// secondary is done. Values come from primary only, which is what chromedp
// needs: primary carries the tab, secondary carries the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	if secondary.Done() == nil {
		return combined, cancel
	}

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// withTimeout applies d when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
