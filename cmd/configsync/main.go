// Command configsync exports AWS Config snapshots and loads every
// configuration item into an Elasticsearch-compatible index.
//
// For each region it triggers a snapshot delivery, waits for the file to land
// in the delivery channel's S3 bucket, downloads it and indexes its items
// under <resourceType>/<awsRegion>.
//
// Usage:
//
//	configsync -d 10.0.0.5:9200 [-r us-east-1] [-v] [--config configsync.yaml]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/tracing"
)

// cliOptions are the values given on the command line.
type cliOptions struct {
	configPath  string
	region      string
	destination string
	verbose     bool
	keepFiles   bool
}

func parseArgs(args []string) (*cliOptions, error) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("configsync", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.StringVarP(&opts.region, "region", "r", "", "ingest a single region (default: the ten standard regions)")
	fs.StringVarP(&opts.destination, "destination", "d", "", "index engine endpoint, ip:port or URL (required)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&opts.keepFiles, "keep-files", false, "keep downloaded snapshot files")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: configsync -d <ip:port> [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// apply layers the command line over the loaded configuration.
func (o *cliOptions) apply(cfg *config.Config) {
	if o.destination != "" {
		cfg.IndexEngine.Endpoint = o.destination
	}
	cfg.IndexEngine.Endpoint = config.NormalizeEndpoint(cfg.IndexEngine.Endpoint)
	if o.region != "" {
		cfg.AWS.Regions = []string{o.region}
	}
	if o.verbose {
		cfg.Logging.Verbose = true
	}
	if o.keepFiles {
		cfg.Snapshot.KeepFiles = true
	}
}

func main() {
	os.Exit(runMain(os.Args[1:], os.Stderr))
}

// runMain parses args, loads and validates the configuration, and runs
// until done or signalled. It returns the process exit code; every deferred
// cleanup has run by the time it returns.
func runMain(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		fmt.Fprintln(stderr, "the index engine destination is given with -d/--destination ip:port")
		return 1
	}

	logger.Setup(cfg.Logging.EffectiveLevel(), cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg)
}

// run executes one ingestion run and returns the process exit code.
func run(ctx context.Context, cfg *config.Config) int {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, slog.Default())
	log.Info("starting configsync",
		"destination", cfg.IndexEngine.Endpoint,
		"regions", cfg.AWS.Regions,
		"poll_attempts", cfg.Poll.MaxAttempts,
		"poll_interval", cfg.Poll.Interval,
	)

	m := metrics.New(prometheus.NewRegistry())
	store := docstore.New(cfg.IndexEngine.Endpoint,
		docstore.WithLogger(slog.Default()),
		docstore.WithMetrics(m),
		docstore.WithHTTPClient(&http.Client{Timeout: cfg.IndexEngine.RequestTimeout}),
		docstore.WithBreaker(resilience.NewBreaker("index-engine",
			cfg.IndexEngine.BreakerThreshold, cfg.IndexEngine.BreakerCooldown, slog.Default())),
	)
	checker := health.NewChecker()
	checker.Register("index-engine", health.PingCheck(store.Ping, true))

	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port, log, map[string]http.Handler{
			"/healthz": checker.Handler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer rc.Close()
		lock, err := rc.AcquireLock(ctx, cfg.Redis.LockKey, runID, cfg.Redis.LockTTL)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockHeld) {
				log.Error("another configsync run is in progress", "error", err)
			} else {
				log.Error("failed to acquire run lock", "error", err)
			}
			return 1
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warn("failed to release run lock", "error", err)
			}
		}()
		var stopKeepAlive context.CancelFunc
		ctx, stopKeepAlive = lock.KeepAlive(ctx, log)
		defer stopKeepAlive()
		checker.Register("redis", health.PingCheck(rc.Ping, false))
	}

	var (
		sinks   []ingestion.OutcomeSink
		history lastRunFinder
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres, slog.Default())
		if err != nil {
			log.Warn("run ledger disabled: postgres unavailable", "error", err)
		} else {
			defer db.Close()
			ledgerStore := ledger.NewStore(db, slog.Default())
			if err := ledgerStore.Migrate(ctx); err != nil {
				log.Warn("run ledger disabled", "error", err)
			} else {
				sinks = append(sinks, ledgerStore)
				history = ledgerStore
				checker.Register("postgres", health.PingCheck(db.Ping, false))
			}
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, slog.Default())
		defer producer.Close()
		sinks = append(sinks, publisher.New(producer, slog.Default()))
		log.Info("publishing region outcomes", "topic", cfg.Kafka.Topic)
	}

	checker.Run(ctx).Log(log)

	templates := docstore.NewTemplateManager(store, cfg.IndexEngine.TemplateName, cfg.IndexEngine.RefreshInterval)
	if err := templates.EnsureDefaultTemplate(ctx); err != nil {
		log.Error("failed to install index template, continuing with engine defaults", "error", err)
	}

	connector, err := snapshot.NewAWSConnector(ctx, slog.Default())
	if err != nil {
		log.Error("failed to set up AWS clients", "error", err)
		return 1
	}
	poller := snapshot.NewPoller(connector,
		resilience.Fixed(cfg.Poll.MaxAttempts, cfg.Poll.Interval),
		snapshot.WithLogger(slog.Default()),
		snapshot.WithMetrics(m),
	)
	pipeline := ingestion.NewPipeline(ingestion.PipelineConfig{
		Source:      poller,
		Connector:   connector,
		Ingester:    ingestion.NewDriver(store, ingestion.WithLogger(slog.Default())),
		DownloadDir: cfg.Snapshot.DownloadDir,
		KeepFiles:   cfg.Snapshot.KeepFiles,
		Sinks:       sinks,
		Logger:      slog.Default(),
		Metrics:     m,
	})

	ctx, span := tracing.StartSpan(ctx, "configsync-run", runID)
	outcomes := pipeline.Run(ctx, cfg.AWS.Regions)
	span.End()
	span.Log(log)

	printSummary(context.WithoutCancel(ctx), os.Stdout, outcomes, history)

	if cfg.Metrics.PushgatewayURL != "" {
		if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			log.Warn("failed to push metrics", "error", err)
		}
	}
	if cause := context.Cause(ctx); errors.Is(cause, apperrors.ErrLockLost) {
		log.Error("run stopped early: run lock lost", "regions", len(outcomes))
		return 1
	}
	log.Info("configsync finished", "regions", len(outcomes))
	return 0
}
