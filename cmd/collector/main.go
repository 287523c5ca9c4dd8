package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/klimeurt/repohealth-collector/internal/config"
	"github.com/klimeurt/repohealth-collector/internal/crawler"
)

func main() {
	flags := pflag.NewFlagSet("collector", pflag.ExitOnError)
	once := flags.Bool("once", false, "Run a single live batch and exit")
	recoverOnly := flags.Bool("recover-only", false, "Run a single discovery-free batch and exit")
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	c, err := crawler.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create crawler: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every handled signal takes the same path: cancel the context and let
	// the interrupted batch unwind. Its deferred checkpoint flush runs after
	// all collector goroutines have settled, so whatever was collected is
	// persisted without racing in-flight attribute writes.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		sig := <-sigChan
		log.Printf("Received %s, shutting down...", sig)
		cancel()
	}()

	switch {
	case *once:
		if err := c.RunBatch(ctx, true); err != nil {
			log.Fatalf("Batch failed: %v", err)
		}
	case *recoverOnly:
		if err := c.RunBatch(ctx, false); err != nil {
			log.Fatalf("Recovery batch failed: %v", err)
		}
	case cfg.CronSchedule != "":
		runCron(ctx, cfg, c)
	default:
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Crawl failed: %v", err)
		}
	}
}

// runCron executes one live batch per cron tick instead of the built-in
// interval loop. Ticks that fire while a batch is still running are skipped;
// a long batch must never overlap the next one.
func runCron(ctx context.Context, cfg *config.Config, c *crawler.Crawler) {
	sched := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(log.Default())),
	))
	_, err := sched.AddFunc(cfg.CronSchedule, func() {
		if c.Done() {
			log.Printf("Reached %d valid records, skipping scheduled batch", c.Size())
			return
		}
		if err := c.RunBatch(ctx, true); err != nil {
			log.Printf("Scheduled batch failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to add cron job: %v", err)
	}

	sched.Start()
	log.Printf("Cron scheduler started with schedule: %s", cfg.CronSchedule)

	if cfg.RunOnStartup {
		log.Println("Running initial batch on startup...")
		if err := c.RunBatch(ctx, true); err != nil {
			log.Printf("Initial batch failed: %v", err)
		}
	}

	<-ctx.Done()
	log.Println("Stopping cron scheduler...")
	sched.Stop()
}
