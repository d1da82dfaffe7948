// Package publisher announces region outcomes on Kafka so downstream
// consumers (dashboards, alerting) learn when an inventory refresh landed.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
)

// EventWriter publishes one event. *kafka.Producer implements it.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns region outcomes into Kafka events keyed by region, so all
// outcomes of a region land on the same partition in order.
type Publisher struct {
	writer EventWriter
	logger *slog.Logger
}

// New creates a Publisher on top of writer. A nil logger discards output.
func New(writer EventWriter, l *slog.Logger) *Publisher {
	if l == nil {
		l = logger.Nop()
	}
	return &Publisher{
		writer: writer,
		logger: l.With("component", "outcome-publisher"),
	}
}

// Record publishes outcome. It satisfies ingestion.OutcomeSink.
func (p *Publisher) Record(ctx context.Context, outcome ingestion.RegionOutcome) error {
	event := kafka.Event{
		Key:   outcome.Region,
		Value: outcome,
	}
	if err := p.writer.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing outcome of %s: %w", outcome.Region, err)
	}
	p.logger.Debug("region outcome published",
		"run_id", outcome.RunID,
		"region", outcome.Region,
		"outcome", outcome.Outcome,
	)
	return nil
}
