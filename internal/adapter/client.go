package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// newHTTPClient builds the resty client every adapter shares the shape of:
// bounded timeout, browser-like headers, permissive TLS for storefronts with
// broken intermediate chains.
func newHTTPClient(timeout time.Duration, headers map[string]string) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Accept-Language", "tr-TR,tr;q=0.9,en-US;q=0.5").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	for k, v := range headers {
		client.SetHeader(k, v)
	}
	return client
}

// newLimiter returns a per-source request limiter. A non-positive rate means
// no throttling.
func newLimiter(requestsPerSecond int) ratelimit.Limiter {
	if requestsPerSecond <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(requestsPerSecond)
}

// fetch issues a rate-limited GET and returns the response body. Non-2xx
// statuses are errors; the caller decides whether that is item- or
// source-level.
func fetch(ctx context.Context, client *resty.Client, rl ratelimit.Limiter, url string) ([]byte, error) {
	rl.Take()

	resp, err := client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}
	return resp.Bytes(), nil
}
