// Package ghclient wraps all outbound traffic: structured GitHub API calls
// with the rate-limit retry policy, and raw page/content fetches with a
// single transparent retry on transport faults. Collectors never talk to the
// network except through this layer.
package ghclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client issues all outbound requests. GH carries API calls (authenticated
// when a token is configured); HTTP carries raw page and content fetches,
// which never send the token.
type Client struct {
	GH   *github.Client
	HTTP *http.Client

	// RateLimitRetries is the number of additional attempts after a primary
	// rate-limit signal before the error is surfaced.
	RateLimitRetries int
	// MinRateLimitWait floors the server-indicated wait so near-zero-wait
	// retries don't trip abuse detection.
	MinRateLimitWait time.Duration
	// Sleep is swappable in tests to observe retry delays.
	Sleep func(time.Duration)
}

// New creates a Client. An empty token yields an unauthenticated API client
// at the lower rate-limit ceiling.
func New(token string, timeout time.Duration) *Client {
	apiHTTP := &http.Client{Timeout: timeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		apiHTTP = oauth2.NewClient(context.Background(), ts)
		apiHTTP.Timeout = timeout
	}

	return &Client{
		GH:               github.NewClient(apiHTTP),
		HTTP:             &http.Client{Timeout: timeout},
		RateLimitRetries: 2,
		MinRateLimitWait: 30 * time.Second,
		Sleep:            time.Sleep,
	}
}

// Do runs one structured API call under the retry policy. The call func is
// re-invoked on retry, so it must be safe to repeat.
//
// Policy: a transport fault is retried exactly once; a primary rate-limit
// signal waits the server-indicated time (floored at MinRateLimitWait) and
// retries up to RateLimitRetries more times; an abuse-detection signal is
// never retried.
func (c *Client) Do(ctx context.Context, op string, call func() (*github.Response, error)) error {
	retriedTransport := false
	rateLimitRetries := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		resp, err := call()
		c.logAPI(op, resp, err, time.Since(start))
		if err == nil {
			return nil
		}

		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &abuseErr) {
			log.Printf("Abuse detection triggered on %s, not retrying", op)
			return err
		}

		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			if rateLimitRetries >= c.RateLimitRetries {
				return fmt.Errorf("rate limit retries exhausted for %s: %w", op, err)
			}
			rateLimitRetries++
			wait := time.Until(rateErr.Rate.Reset.Time)
			if wait < c.MinRateLimitWait {
				wait = c.MinRateLimitWait
			}
			log.Printf("Rate limit hit on %s, waiting %s before retry %d/%d",
				op, wait.Round(time.Second), rateLimitRetries, c.RateLimitRetries)
			c.Sleep(wait)
			continue
		}

		var urlErr *url.Error
		if errors.As(err, &urlErr) && !retriedTransport {
			retriedTransport = true
			log.Printf("Transient failure on %s, retrying once: %v", op, err)
			continue
		}

		return err
	}
}

// Get fetches a raw page or content URL. The caller owns the response body
// and must treat any status it does not expect as an error.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.fetch(ctx, http.MethodGet, rawURL)
}

// Head issues an existence check. The response body is already closed.
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.fetch(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, method, rawURL string) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request for %s: %w", method, rawURL, err)
		}

		start := time.Now()
		resp, err = c.HTTP.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			log.Printf("%s %s failed in %s: %v", method, rawURL, elapsed.Round(time.Millisecond), err)
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}

		log.Printf("%s %s -> %d in %s", method, rawURL, resp.StatusCode, elapsed.Round(time.Millisecond))
		return resp, nil
	}
	return nil, fmt.Errorf("failed to fetch %s after retry: %w", rawURL, err)
}

func (c *Client) logAPI(op string, resp *github.Response, err error, elapsed time.Duration) {
	switch {
	case resp != nil && resp.Request != nil:
		log.Printf("%s %s -> %d in %s", resp.Request.Method, resp.Request.URL, resp.StatusCode, elapsed.Round(time.Millisecond))
	case err != nil:
		log.Printf("API %s failed in %s: %v", op, elapsed.Round(time.Millisecond), err)
	default:
		log.Printf("API %s completed in %s", op, elapsed.Round(time.Millisecond))
	}
}

// IsNotFound reports whether a structured API error is a 404.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// StatusCode extracts the HTTP status of a structured API error, or 0.
func StatusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}
