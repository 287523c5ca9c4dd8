// The emitter regenerates the ARFF dataset from an existing checkpoint
// without touching the network. Useful after hand-editing a checkpoint or
// when only the dataset file was lost.
package main

import (
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/klimeurt/repohealth-collector/internal/checkpoint"
	"github.com/klimeurt/repohealth-collector/internal/config"
	"github.com/klimeurt/repohealth-collector/internal/dataset"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

func main() {
	flags := pflag.NewFlagSet("emitter", pflag.ExitOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	records, err := checkpoint.New(cfg.CheckpointPath).Load()
	if err != nil {
		log.Fatalf("Failed to load checkpoint %s: %v", cfg.CheckpointPath, err)
	}
	if records == nil {
		log.Fatalf("No checkpoint found at %s", cfg.CheckpointPath)
	}

	valid, dropped := record.FilterValid(records)
	if len(dropped) > 0 {
		log.Printf("Skipping %d records without a contributor count", len(dropped))
	}

	if err := dataset.New(cfg.DatasetPath).Write(valid); err != nil {
		log.Fatalf("Failed to write dataset: %v", err)
	}
	log.Printf("Emitted dataset with %d rows to %s", len(valid), cfg.DatasetPath)
}
