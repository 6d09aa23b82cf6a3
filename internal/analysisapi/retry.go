package analysisapi

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ballet-compare/internal/shared/metrics"
	"ballet-compare/internal/shared/telemetry"
)

// withRetry runs op with a per-attempt timeout and retries transient
// failures with exponential backoff.
func (c *Client) withRetry(ctx context.Context, path string, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 10 * c.retryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			metrics.IncEndpointCall(metricName(path), "ok")
			return struct{}{}, nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			metrics.IncEndpointCall(metricName(path), "error")
			return struct{}{}, backoff.Permanent(err)
		}
		metrics.IncEndpointCall(metricName(path), "retry")
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.Warn("analysis_api.retry", map[string]any{
				"endpoint": path,
				"attempt":  attempt,
				"next_ms":  next.Milliseconds(),
				"error":    err,
			})
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout")
}

func metricName(path string) string {
	switch path {
	case PathScore:
		return "score"
	case PathBasic:
		return "feedback_basic"
	case PathCommentary:
		return "feedback_chatgpt"
	default:
		return strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	}
}
