// Package ingestion loads AWS Config snapshot files into the document index:
// the Driver streams one file's configuration items into the index, and the
// Pipeline runs trigger, poll, download and ingest for each region.
package ingestion

import (
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// RegionOutcome is the result of one region run. It is written to the run
// ledger and published as a Kafka event.
type RegionOutcome struct {
	RunID      string            `json:"run_id"`
	Region     string            `json:"region"`
	Outcome    apperrors.Outcome `json:"outcome"`
	SnapshotID string            `json:"snapshot_id,omitempty"`
	Bucket     string            `json:"bucket,omitempty"`
	StorageKey string            `json:"storage_key,omitempty"`
	Attempts   int               `json:"attempts"`
	Bytes      int64             `json:"bytes"`
	Indexed    int               `json:"indexed"`
	Failed     int               `json:"failed"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Skipped reports whether the region was skipped before any file was
// ingested because AWS Config could not provide a snapshot.
func (o RegionOutcome) Skipped() bool {
	switch o.Outcome {
	case apperrors.OutcomeNoChannel, apperrors.OutcomeDeliveryFailed, apperrors.OutcomeNotDelivered:
		return true
	}
	return false
}
