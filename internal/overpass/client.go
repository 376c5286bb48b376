package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options tunes the client. Zero values fall back to the defaults below.
type Options struct {
	HTTPClient *http.Client
	Endpoint   string
	UserAgent  string
	// Interval is the minimum spacing between two requests.
	Interval time.Duration
	// RetryDelay is multiplied by the number of failed attempts before each retry.
	RetryDelay time.Duration
	Retries    int
}

// Client is a rate-limited Overpass API client. It is safe for concurrent use;
// requests are spaced globally, not per goroutine.
type Client struct {
	http       *http.Client
	endpoint   string
	userAgent  string
	limiter    *rate.Limiter
	retryDelay time.Duration
	retries    int
}

// New builds a client.
func New(opts Options) *Client {
	c := &Client{
		http:       opts.HTTPClient,
		endpoint:   opts.Endpoint,
		userAgent:  opts.UserAgent,
		retryDelay: opts.RetryDelay,
		retries:    opts.Retries,
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.endpoint == "" {
		c.endpoint = "https://overpass-api.de/api/interpreter"
	}
	if c.retries <= 0 {
		c.retries = 3
	}
	interval := opts.Interval
	if interval < 0 {
		interval = 0
	}
	// rate.Every(0) is rate.Inf, so a zero interval disables pacing.
	c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	if c.retryDelay < 0 {
		c.retryDelay = 0
	}

	return c
}

// Query runs an Overpass QL query and returns its elements.
func (c *Client) Query(ctx context.Context, query string) ([]Element, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			log.Debug().
				Int("attempt", attempt).
				Int("retries", c.retries).
				Msg("Retrying overpass query")

			if err := sleep(ctx, c.retryDelay*time.Duration(attempt-1)); err != nil {
				return nil, err
			}
		}

		// Fails fast when the next slot lies beyond the context deadline.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		elements, err := c.do(ctx, query)
		if err == nil {
			return elements, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("retries", c.retries).
			Msg("Overpass query failed")
	}

	return nil, fmt.Errorf("overpass query failed after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) do(ctx context.Context, query string) ([]Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?data="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}

	log.Trace().
		Int("elements", len(out.Elements)).
		Dur("duration", time.Since(start)).
		Msg("Overpass query completed")

	return out.Elements, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
