package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/ereinha3/eznas/pkg/metrics"
)

// Retry policy for transient HTTP failures. Connection errors and
// server-side statuses retry with exponential backoff; 4xx never does.
const (
	maxRetries  = 3
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

var retryableStatus = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
	520: true,
	521: true,
	522: true,
	523: true,
	524: true,
}

// sleep is swapped out in tests to keep retries instant.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// doWithRetry issues req via client, retrying connection errors and
// retryable statuses. The request must have a rewindable body (our
// callers rebuild it per attempt via factory).
func doWithRetry(ctx context.Context, client *http.Client, service string, factory func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			metrics.ClientRetriesTotal.WithLabelValues(service).Inc()
			if err := sleep(ctx, backoffDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := factory()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		if retryableStatus[resp.StatusCode] && attempt < maxRetries {
			resp.Body.Close()
			lastErr = nil
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
