// Package collector holds one collector per data facet. Every collector is
// idempotent: a record whose target attributes are already present is
// skipped without any network call, which makes interrupted runs resumable.
package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/probe"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Collector populates one or more attributes on every record lacking them.
type Collector interface {
	Name() string
	Collect(ctx context.Context, records []*record.Record) error
}

// Deps is the shared environment of all collectors. RawBase and WebBase are
// overridable so tests can point probes and scrapes at a stub server.
type Deps struct {
	Client  *ghclient.Client
	Prober  *probe.Prober
	RawBase string
	WebBase string
}

// NewDeps wires the collector environment on top of the shared client.
func NewDeps(client *ghclient.Client) *Deps {
	return &Deps{
		Client:  client,
		Prober:  probe.New(client),
		RawBase: "https://raw.githubusercontent.com",
		WebBase: "https://github.com",
	}
}

// Sequence returns the remaining collectors in their fixed dependency order:
// the README resolver runs before the size measurement that consumes its
// URL, and the environment listing runs before the deployment check that it
// short-circuits. The contributor collector is not part of the sequence; the
// orchestrator runs it first to filter unscorable records.
func Sequence(deps *Deps) []Collector {
	return []Collector{
		&Readme{deps},
		&ReadmeSize{deps},
		&Community{deps},
		&HealthFiles{deps},
		&Languages{deps},
		&Workflows{deps},
		&Releases{deps},
		&Environments{deps},
		&Deployments{deps},
		&Labels{deps},
		&Milestones{deps},
	}
}

// eachPending runs fn concurrently for every record that still needs work.
// Records are independent; the rate-limit layer is the only throttle. The
// first per-record error is returned after all in-flight work settles.
func eachPending(ctx context.Context, records []*record.Record, pending func(*record.Record) bool, fn func(context.Context, *record.Record) error) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(records))

	for _, rec := range records {
		if !pending(rec) {
			continue
		}
		wg.Add(1)
		go func(rec *record.Record) {
			defer wg.Done()
			if err := fn(ctx, rec); err != nil {
				errCh <- fmt.Errorf("%s: %w", rec.Identity(), err)
			}
		}(rec)
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// listingCount derives a total count from a per_page=1 listing: the last
// Link page index equals the total, and a response without a Link header
// holds the full (zero- or one-element) listing.
func listingCount(resp *github.Response, pageLen int) int {
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage
	}
	return pageLen
}

// fileCandidates builds the raw-content URLs an optional artifact may live
// at: repository root, .github/ and docs/ on the default branch, plus the
// owner's .github default-health-file repository at its common branch names.
func (d *Deps) fileCandidates(rec *record.Record, names ...string) []string {
	branch := rec.DefaultBranch
	if branch == "" {
		branch = "master"
	}

	var urls []string
	for _, name := range names {
		urls = append(urls,
			fmt.Sprintf("%s/%s/%s/%s/%s", d.RawBase, rec.Owner, rec.Name, branch, name),
			fmt.Sprintf("%s/%s/%s/%s/.github/%s", d.RawBase, rec.Owner, rec.Name, branch, name),
			fmt.Sprintf("%s/%s/%s/%s/docs/%s", d.RawBase, rec.Owner, rec.Name, branch, name),
			fmt.Sprintf("%s/%s/.github/main/%s", d.RawBase, rec.Owner, name),
			fmt.Sprintf("%s/%s/.github/master/%s", d.RawBase, rec.Owner, name),
		)
	}
	return urls
}
