package ingestion

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/configsync/internal/inventory"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
)

var json = jsoniter.Config{UseNumber: true}.Froze()

const readBufferSize = 64 << 10

// Indexer writes one document. *docstore.Client implements it.
type Indexer interface {
	Upsert(ctx context.Context, index, docType, id string, doc map[string]any) (string, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithCaptureTime fixes the snapshotTimeIso stamped on every record.
func WithCaptureTime(t time.Time) Option {
	return func(d *Driver) { d.captured = docstore.FormatISO(t) }
}

// Driver streams the configuration items of a snapshot file into an Indexer.
type Driver struct {
	store    Indexer
	logger   *slog.Logger
	captured string
}

// NewDriver returns a Driver writing to store. Unless WithCaptureTime is
// given, the capture time is the moment the driver is created, so every file
// ingested by one driver shares the same snapshotTimeIso.
func NewDriver(store Indexer, opts ...Option) *Driver {
	d := &Driver{
		store:    store,
		logger:   logger.Nop(),
		captured: docstore.FormatISO(time.Now()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "ingestion-driver")
	return d
}

// Run indexes every item of the gzip-compressed snapshot at path. A missing,
// null or empty configurationItems list indexes nothing. Bad items and failed
// writes are logged and counted without stopping the file; only an
// unreadable file or a cancelled ctx ends the run early, returning the
// counts so far with the error.
func (d *Driver) Run(ctx context.Context, path string) (Summary, error) {
	var sum Summary
	log := logger.FromContext(ctx, d.logger).With("file", path)

	f, err := os.Open(path)
	if err != nil {
		return sum, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return sum, fmt.Errorf("reading gzip header of %s: %w", path, err)
	}
	defer gz.Close()

	iter := jsoniter.Parse(json, gz, readBufferSize)
	complete := iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != inventory.ItemsKey {
			it.Skip()
			return true
		}
		switch it.WhatIsNext() {
		case jsoniter.NilValue:
			it.Skip()
			return true
		case jsoniter.ArrayValue:
		default:
			it.ReportError("read "+inventory.ItemsKey, "expected an array")
			return false
		}
		return it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			item := it.Read()
			if it.Error != nil {
				return false
			}
			sum.Observe(d.index(ctx, log, item))
			return ctx.Err() == nil
		})
	})

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if iter.Error != nil && !(complete && errors.Is(iter.Error, io.EOF)) {
		return sum, fmt.Errorf("parsing snapshot %s: %w", path, iter.Error)
	}
	log.Debug("snapshot ingested", "indexed", sum.Indexed, "failed", sum.Failed)
	return sum, nil
}

func (d *Driver) index(ctx context.Context, log *slog.Logger, item any) RecordResult {
	rec, err := inventory.FromValue(item)
	if err != nil {
		log.Error("could not add item", "stage", StageDecode, "error", err, "item", item)
		return RecordResult{Stage: StageDecode, Err: err}
	}
	if err := validator.ValidateRecord(rec); err != nil {
		log.Error("could not add item", "stage", StageValidate, "error", err, "item", rec)
		return RecordResult{Stage: StageValidate, Err: err}
	}
	route, err := inventory.Route(rec)
	if err != nil {
		log.Error("could not add item", "stage", StageValidate, "error", err, "item", rec)
		return RecordResult{Stage: StageValidate, Err: err}
	}

	rec[inventory.FieldSnapshotTimeISO] = d.captured
	id, err := d.store.Upsert(ctx, route.Index, route.DocType, rec.DocumentID(), rec)
	if err != nil {
		log.Error("could not add item", "stage", StageWrite, "routing", route.String(), "error", err, "item", rec)
		return RecordResult{Routing: route, Stage: StageWrite, Err: err}
	}
	log.Debug("item added", "routing", route.String(), "id", id)
	return RecordResult{Routing: route, ID: id}
}
