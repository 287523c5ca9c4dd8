// Package publisher pushes validated repository records to a NATS subject
// for downstream consumers. Publishing is optional; the pipeline runs
// standalone when no NATS URL is configured.
package publisher

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/klimeurt/repohealth-collector/internal/record"
	"github.com/nats-io/nats.go"
)

// Publisher owns the NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// New connects to the NATS server.
func New(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends one record as a JSON message.
func (p *Publisher) Publish(rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.Identity(), err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", rec.Identity(), err)
	}
	return nil
}

// PublishAll sends every record, continuing past individual failures.
func (p *Publisher) PublishAll(records []*record.Record) {
	for _, rec := range records {
		if err := p.Publish(rec); err != nil {
			log.Printf("Failed to publish record %s: %v", rec.Identity(), err)
			continue
		}
		log.Printf("Published record: %s", rec.Identity())
	}
}

// Close cleanly shuts down the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
