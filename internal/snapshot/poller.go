package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/resilience"
)

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the poller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithMetrics records poll attempts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// Poller requests a snapshot delivery and waits for the file to land in S3.
type Poller struct {
	connector Connector
	policy    resilience.Policy
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewPoller returns a Poller that looks for delivered files under policy.
func NewPoller(connector Connector, policy resilience.Policy, opts ...Option) *Poller {
	p := &Poller{
		connector: connector,
		policy:    policy,
		logger:    logger.Nop(),
		metrics:   metrics.New(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "snapshot-poller")
	return p
}

// Deliver triggers a snapshot in region and polls until its object key is
// known. The returned handle is never nil; on error it is in StateFailed.
//
// A region without a delivery channel yields ErrNoDeliveryChannel, a rejected
// trigger ErrDeliveryFailed, and a file that never appears within the policy
// ErrPollExhausted. Cancelling ctx stops the wait.
func (p *Poller) Deliver(ctx context.Context, region string) (*Handle, error) {
	h := &Handle{Region: region, State: StateRequested}
	log := logger.FromContext(ctx, p.logger).With("region", region)

	ep, err := p.connector.Connect(ctx, region)
	if err != nil {
		h.Fail()
		return h, fmt.Errorf("connecting to %s: %w", region, err)
	}

	bucket, err := ep.Config.BucketName(ctx)
	if err != nil {
		h.Fail()
		return h, err
	}
	h.Bucket = bucket

	id, err := ep.Config.DeliverSnapshot(ctx)
	if err != nil {
		h.Fail()
		return h, err
	}
	h.ID = id
	h.State = StatePending
	log.Info("snapshot delivery requested", "snapshot_id", id, "bucket", bucket)

	locator := NewLocator(ep.Objects, log)
	attempts, err := resilience.Poll(ctx, "locate snapshot "+id, p.policy, log, func(int) (bool, error) {
		key, err := locator.Locate(ctx, bucket, id)
		if errors.Is(err, apperrors.ErrSnapshotNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		h.StorageKey = key
		return true, nil
	})
	h.Attempts = attempts
	p.metrics.PollAttempts.WithLabelValues(region).Observe(float64(attempts))
	if err != nil {
		h.Fail()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return h, fmt.Errorf("waiting for snapshot %s: %w", id, ctxErr)
		}
		return h, fmt.Errorf("%w: snapshot %s not found in s3://%s: %w", apperrors.ErrPollExhausted, id, bucket, err)
	}

	h.State = StateLocated
	log.Info("snapshot located", "snapshot_id", id, "key", h.StorageKey, "attempts", attempts)
	return h, nil
}
