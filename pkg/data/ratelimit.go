package data

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/nwflabs/nwf/pkg/net"
)

const (
	rateLimitMaxRetries   = 3
	rateLimitBaseWait     = 2 * time.Second
	rateLimitJitterMillis = 2000
)

// rateLimitWait grows the wait exponentially with a random jitter so
// parallel workers do not retry in lockstep.
func rateLimitWait(attempt int) time.Duration {
	wait := rateLimitBaseWait << attempt
	jitter := time.Duration(rand.IntN(rateLimitJitterMillis)) * time.Millisecond
	return wait + jitter
}

// getJSONThrottled retries rate-limited provider calls. Any other
// error, including 404, passes through untouched.
func getJSONThrottled[T any](ctx context.Context, client *http.Client, url string, target *T) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = net.GetJSON(ctx, client, url, target)
		if err == nil || !errors.Is(err, net.ErrorTooManyRequests) {
			return err
		}
		if attempt >= rateLimitMaxRetries {
			return err
		}

		wait := rateLimitWait(attempt)
		slog.Info("provider rate limit hit, waiting",
			"attempt", attempt+1,
			"wait", wait.String(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
