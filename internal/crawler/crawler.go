// Package crawler drives the batch pipeline: load checkpoint, discover
// candidate repositories, filter unscorable records, run the attribute
// collectors in dependency order, persist, emit. The checkpoint is persisted
// after every batch whether it succeeded or failed, so no collected data is
// ever lost to an error.
package crawler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/checkpoint"
	"github.com/klimeurt/repohealth-collector/internal/collector"
	"github.com/klimeurt/repohealth-collector/internal/config"
	"github.com/klimeurt/repohealth-collector/internal/dataset"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/publisher"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Crawler owns the in-memory record set between batches.
type Crawler struct {
	cfg          *config.Config
	store        *checkpoint.Store
	client       *ghclient.Client
	contributors collector.Collector
	sequence     []collector.Collector
	emitter      *dataset.Emitter
	pub          *publisher.Publisher

	// batchMu serializes whole batches: collectors from two batches must
	// never run concurrently over the same records.
	batchMu sync.Mutex

	mu      sync.Mutex
	records []*record.Record
}

// New wires a Crawler from configuration. The NATS publisher is only
// connected when a URL is configured.
func New(cfg *config.Config) (*Crawler, error) {
	client := ghclient.New(cfg.GitHubToken, cfg.RequestTimeout)
	deps := collector.NewDeps(client)

	var pub *publisher.Publisher
	if cfg.NATSUrl != "" {
		var err error
		pub, err = publisher.New(cfg.NATSUrl, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
	}

	return &Crawler{
		cfg:          cfg,
		store:        checkpoint.New(cfg.CheckpointPath),
		client:       client,
		contributors: &collector.Contributors{Deps: deps},
		sequence:     collector.Sequence(deps),
		emitter:      dataset.New(cfg.DatasetPath),
		pub:          pub,
	}, nil
}

// Run executes live batches until the valid record count exceeds the
// configured maximum or the context is canceled. A failed batch is followed
// by a bounded number of recovery-only batches before the next scheduled
// live one.
func (c *Crawler) Run(ctx context.Context) error {
	for {
		if err := c.RunBatch(ctx, true); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Batch failed: %v", err)
			c.recover(ctx)
		}

		if c.Done() {
			log.Printf("Reached %d valid records, stopping", c.Size())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.BatchInterval):
		}
	}
}

// recover runs discovery-free batches so the collectors can catch up on
// already-discovered records before the normal cadence resumes. After the
// configured number of attempts the iteration is given up on.
func (c *Crawler) recover(ctx context.Context) {
	for attempt := 1; attempt <= c.cfg.RecoveryAttempts; attempt++ {
		log.Printf("Recovery attempt %d/%d after %s cooldown", attempt, c.cfg.RecoveryAttempts, c.cfg.RecoveryCooldown)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RecoveryCooldown):
		}

		if err := c.RunBatch(ctx, false); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Recovery batch failed: %v", err)
			continue
		}
		return
	}
	log.Printf("Recovery attempts exhausted, moving to next scheduled batch")
}

// RunBatch runs one batch. With discover set it is a live batch that merges
// a fresh search page into the checkpoint; without it the batch only lets
// collectors catch up on already-discovered records. The checkpoint is
// flushed on every exit path.
func (c *Crawler) RunBatch(ctx context.Context, discover bool) (err error) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	loaded, err := c.store.Load()
	if err != nil {
		return err
	}
	c.setRecords(loaded)

	defer func() {
		if ferr := c.Flush(); ferr != nil {
			log.Printf("Failed to flush checkpoint: %v", ferr)
			if err == nil {
				err = ferr
			}
		}
	}()

	if discover {
		discovered, derr := c.discover(ctx)
		if derr != nil {
			return fmt.Errorf("discovery failed: %w", derr)
		}
		log.Printf("Discovered %d candidate repositories", len(discovered))
		c.setRecords(record.Merge(c.snapshot(), discovered))
	}

	records := c.snapshot()

	// Filtering: contributor counts first, then drop unscorable records so
	// the remaining collectors never waste calls on them.
	pendingBefore := make(map[record.Identity]bool)
	for _, r := range records {
		if !r.Valid() {
			pendingBefore[r.Identity()] = true
		}
	}
	if err := c.contributors.Collect(ctx, records); err != nil {
		return fmt.Errorf("collector contributors: %w", err)
	}
	valid, dropped := record.FilterValid(records)
	if len(dropped) > 0 {
		for _, r := range dropped {
			log.Printf("Dropping %s: contributor count undeterminable", r.Identity())
		}
	}
	c.setRecords(valid)

	for _, col := range c.sequence {
		log.Printf("Running collector %s over %d records", col.Name(), len(valid))
		if cerr := col.Collect(ctx, valid); cerr != nil {
			return fmt.Errorf("collector %s: %w", col.Name(), cerr)
		}
	}

	if werr := c.emitter.Write(valid); werr != nil {
		return fmt.Errorf("dataset emit failed: %w", werr)
	}
	log.Printf("Emitted dataset with %d rows to %s", len(valid), c.cfg.DatasetPath)

	if c.pub != nil {
		var fresh []*record.Record
		for _, r := range valid {
			if pendingBefore[r.Identity()] {
				fresh = append(fresh, r)
			}
		}
		c.pub.PublishAll(fresh)
	}

	return nil
}

func (c *Crawler) discover(ctx context.Context) ([]*record.Record, error) {
	query := fmt.Sprintf("stars:>%d", c.cfg.MinStars)

	var repos []*github.Repository
	err := c.client.Do(ctx, "search "+query, func() (*github.Response, error) {
		result, resp, err := c.client.GH.Search.Repositories(ctx, query, &github.SearchOptions{
			Sort:        "updated",
			Order:       "desc",
			ListOptions: github.ListOptions{Page: 1, PerPage: c.cfg.PerPage},
		})
		if err != nil {
			return resp, err
		}
		repos = result.Repositories
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]*record.Record, 0, len(repos))
	for _, repo := range repos {
		records = append(records, record.FromGitHub(repo))
	}
	return records, nil
}

// Flush persists the current in-memory state. It is also the cancellation
// path: signal handlers call it before process exit.
func (c *Crawler) Flush() error {
	return c.store.Persist(c.snapshot())
}

// Done reports whether the crawl reached its terminal record count.
func (c *Crawler) Done() bool {
	return c.Size() > c.cfg.MaxRecords
}

// Size returns the current record count.
func (c *Crawler) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Close releases the publisher connection.
func (c *Crawler) Close() {
	if c.pub != nil {
		c.pub.Close()
	}
}

func (c *Crawler) setRecords(records []*record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
}

func (c *Crawler) snapshot() []*record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records
}
