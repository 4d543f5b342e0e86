// Package chainrpc is the JSON-RPC transport to the chain node. It wraps the
// go-ethereum rpc client with bounded retries for transient failures so the
// layers above can treat every returned error as final.
package chainrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Config holds the endpoint and retry policy.
type Config struct {
	URL         string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Client is a retrying JSON-RPC client.
type Client struct {
	rpc    *gethrpc.Client
	cfg    Config
	logger *slog.Logger
}

// Dial connects to the node at cfg.URL. HTTP(S) and WS(S) endpoints are both
// accepted.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}

	c, err := gethrpc.DialOptions(ctx, cfg.URL,
		gethrpc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: dial: %w", err)
	}
	return &Client{
		rpc:    c,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chainrpc")),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Call invokes method with args and decodes the result into result. Retryable
// failures (HTTP 408/429/5xx, provider rate-limit messages, network timeouts)
// are retried with exponential backoff plus jitter up to the attempt cap;
// anything else is returned on the first failure.
func (c *Client) Call(ctx context.Context, result any, method string, args ...any) error {
	for attempt := 1; ; attempt++ {
		err := c.rpc.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("chainrpc: %s: %w", method, domain.ErrContextDone)
		}
		if !IsRetryable(err) || attempt >= c.cfg.MaxAttempts {
			if isRateLimit(err) {
				return fmt.Errorf("chainrpc: %s: %w: %v", method, domain.ErrRateLimited, err)
			}
			return fmt.Errorf("chainrpc: %s: %w", method, err)
		}

		delay := c.backoff(attempt)
		c.logger.DebugContext(ctx, "retrying rpc call",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("chainrpc: %s: %w", method, domain.ErrContextDone)
		case <-t.C:
		}
	}
}

// backoff returns the delay before retry number attempt: exponential growth
// capped at MaxBackoff, with the upper half randomised.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseBackoff << (attempt - 1)
	if d <= 0 || d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	half := d / 2
	return half + rand.N(half+1)
}

var rateLimitMarkers = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"exceeded its compute units",
	"capacity",
	"throughput",
}

// IsRetryable reports whether err is a transient transport or provider error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout,
			httpErr.StatusCode >= 500:
			return true
		}
		return isRateLimit(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return isRateLimit(err)
}

func isRateLimit(err error) bool {
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
