package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/tracing"
)

// SnapshotSource delivers a located snapshot for a region.
// *snapshot.Poller implements it.
type SnapshotSource interface {
	Deliver(ctx context.Context, region string) (*snapshot.Handle, error)
}

// FileIngester loads one downloaded snapshot. *Driver implements it.
type FileIngester interface {
	Run(ctx context.Context, path string) (Summary, error)
}

// OutcomeSink receives the outcome of every region run.
type OutcomeSink interface {
	Record(ctx context.Context, outcome RegionOutcome) error
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Source    SnapshotSource
	Connector snapshot.Connector
	Ingester  FileIngester
	// DownloadDir receives snapshot files; they are removed after ingestion
	// unless KeepFiles is set.
	DownloadDir string
	KeepFiles   bool
	Sinks       []OutcomeSink
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Pipeline processes regions one at a time: trigger a snapshot, wait for it,
// download it and ingest it.
type Pipeline struct {
	source      SnapshotSource
	connector   snapshot.Connector
	ingester    FileIngester
	downloadDir string
	keepFiles   bool
	sinks       []OutcomeSink
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewPipeline builds a Pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		source:      cfg.Source,
		connector:   cfg.Connector,
		ingester:    cfg.Ingester,
		downloadDir: cfg.DownloadDir,
		keepFiles:   cfg.KeepFiles,
		sinks:       cfg.Sinks,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         time.Now,
	}
	if p.downloadDir == "" {
		p.downloadDir = os.TempDir()
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Run processes regions in order. A failing region never stops the others;
// only a cancelled ctx does.
func (p *Pipeline) Run(ctx context.Context, regions []string) []RegionOutcome {
	outcomes := make([]RegionOutcome, 0, len(regions))
	for _, region := range regions {
		if ctx.Err() != nil {
			logger.FromContext(ctx, p.logger).Warn("run cancelled, skipping remaining regions", "next_region", region)
			break
		}
		outcomes = append(outcomes, p.RunRegion(ctx, region))
	}
	p.metrics.LastRunTimestampSecond.SetToCurrentTime()
	return outcomes
}

// RunRegion runs one region end to end and classifies how it ended.
func (p *Pipeline) RunRegion(ctx context.Context, region string) RegionOutcome {
	ctx, span := tracing.StartChildSpan(ctx, "region")
	span.SetAttr("region", region)
	log := logger.FromContext(ctx, p.logger).With("region", region)
	out := RegionOutcome{
		RunID:     logger.RunIDFromContext(ctx),
		Region:    region,
		StartedAt: p.now().UTC(),
	}

	err := p.runRegion(ctx, log, &out)
	span.EndWithError(err)

	out.FinishedAt = p.now().UTC()
	if out.Outcome == "" {
		out.Outcome = apperrors.Classify(err)
	}
	if err != nil {
		out.Error = err.Error()
	}
	switch {
	case err == nil:
		log.Info("region completed", "indexed", out.Indexed, "failed", out.Failed)
	case out.Skipped():
		log.Warn("region skipped", "outcome", out.Outcome, "error", err)
	default:
		log.Error("region failed", "outcome", out.Outcome, "error", err)
	}

	p.metrics.RegionOutcomesTotal.WithLabelValues(region, string(out.Outcome)).Inc()
	for _, sink := range p.sinks {
		if err := sink.Record(ctx, out); err != nil {
			log.Warn("recording region outcome failed", "error", err)
		}
	}
	return out
}

func (p *Pipeline) runRegion(ctx context.Context, log *slog.Logger, out *RegionOutcome) error {
	dctx, deliverSpan := tracing.StartChildSpan(ctx, "deliver")
	h, err := p.source.Deliver(dctx, out.Region)
	deliverSpan.EndWithError(err)
	if h != nil {
		out.SnapshotID = h.ID
		out.Bucket = h.Bucket
		out.StorageKey = h.StorageKey
		out.Attempts = h.Attempts
	}
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("no snapshot handle for %s", out.Region)
	}

	path := filepath.Join(p.downloadDir, fmt.Sprintf("configsnapshot-%d.json.gz", p.now().UnixNano()))
	_, downloadSpan := tracing.StartChildSpan(ctx, "download")
	n, err := p.download(ctx, h, path)
	downloadSpan.EndWithError(err)
	if err != nil {
		out.Outcome = apperrors.OutcomeDownloadFailed
		return err
	}
	h.Downloaded(path, n)
	out.Bytes = n
	p.metrics.SnapshotBytes.WithLabelValues(out.Region).Observe(float64(n))
	if !p.keepFiles {
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn("removing snapshot file failed", "path", path, "error", err)
			}
		}()
	}

	ictx, ingestSpan := tracing.StartChildSpan(ctx, "ingest")
	sum, err := p.ingester.Run(ictx, path)
	ingestSpan.SetAttr("indexed", sum.Indexed)
	ingestSpan.SetAttr("failed", sum.Failed)
	ingestSpan.EndWithError(err)

	out.Indexed, out.Failed = sum.Indexed, sum.Failed
	p.metrics.RecordsIndexedTotal.WithLabelValues(out.Region).Add(float64(sum.Indexed))
	for stage, n := range sum.ByStage {
		p.metrics.RecordsFailedTotal.WithLabelValues(out.Region, string(stage)).Add(float64(n))
	}
	log.Info(fmt.Sprintf("added %d items into the index", sum.Indexed), "snapshot_id", h.ID)
	if sum.Failed > 0 {
		log.Warn(fmt.Sprintf("couldn't add %d items, check index engine permissions and mappings", sum.Failed), "snapshot_id", h.ID)
	}
	if err != nil {
		out.Outcome = apperrors.OutcomeIngestFailed
		return err
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, h *snapshot.Handle, path string) (int64, error) {
	ep, err := p.connector.Connect(ctx, h.Region)
	if err != nil {
		return 0, fmt.Errorf("connecting to %s: %w", h.Region, err)
	}
	n, err := ep.Objects.Download(ctx, h.Bucket, h.StorageKey, path)
	if err != nil {
		h.Fail()
		return 0, err
	}
	return n, nil
}
