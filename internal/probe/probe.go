// Package probe answers "does any of these locations exist" for optional
// repository artifacts that may live in several paths or branches.
package probe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/klimeurt/repohealth-collector/internal/ghclient"
)

// Prober checks candidate URLs for existence.
type Prober struct {
	Client *ghclient.Client
}

// New creates a Prober on top of the shared HTTP layer.
func New(client *ghclient.Client) *Prober {
	return &Prober{Client: client}
}

type outcome struct {
	url    string
	status int
	err    error
}

// Exists checks all candidates concurrently and resolves true as soon as one
// returns 200; in-flight checks for the remaining candidates are abandoned.
// All candidates answering 404 resolves false. Any other outcome without a
// found candidate is an error: a false negative would be cached as a
// collected attribute and corrupt the feature permanently.
func (p *Prober) Exists(ctx context.Context, candidates []string) (bool, error) {
	if len(candidates) == 0 {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan outcome, len(candidates))
	for _, url := range candidates {
		go func(url string) {
			resp, err := p.Client.Head(ctx, url)
			if err != nil {
				outcomes <- outcome{url: url, err: err}
				return
			}
			outcomes <- outcome{url: url, status: resp.StatusCode}
		}(url)
	}

	var firstErr error
	for range candidates {
		o := <-outcomes
		switch {
		case o.err != nil:
			// Abandoned in-flight checks fail with a context error once a
			// candidate has already won; those never reach this point
			// because we return immediately on the first 200.
			if firstErr == nil {
				firstErr = fmt.Errorf("existence check failed for %s: %w", o.url, o.err)
			}
		case o.status == http.StatusOK:
			return true, nil
		case o.status == http.StatusNotFound:
			// Absence at one candidate location; keep waiting.
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("unexpected status %d for %s", o.status, o.url)
			}
		}
	}

	if firstErr != nil {
		return false, firstErr
	}
	return false, nil
}
