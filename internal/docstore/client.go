// Package docstore is a client for an Elasticsearch-compatible document
// index, built on the typed go-elasticsearch requests. It upserts inventory documents under index/type/id, stamps them with
// addedIso/updatedIso, installs the default index template, and runs the small
// set of queries configsync needs (match, date range, id-only and count
// projections).
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/resilience"
)

// json keeps numbers as json.Number so large integers in inventory records
// survive a decode/encode round trip unchanged.
var json = jsoniter.Config{
	EscapeHTML:  false,
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMetrics records request latency and status on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBreaker guards requests with b. Transport errors and 5xx responses
// count as failures; while b is open requests fail with
// resilience.ErrCircuitOpen without reaching the engine.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// Client talks to one index engine endpoint.
type Client struct {
	transport *transport
	http      *http.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	breaker   *resilience.Breaker
	now       func() time.Time
}

// New creates a Client for baseURL (scheme://host:port).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Nop(),
		metrics: metrics.New(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport = newTransport(baseURL, c.http)
	c.logger = c.logger.With("component", "docstore")
	return c
}

// Upsert writes doc to index/docType. With an id it replaces or creates the
// document at that id (PUT); without one the engine assigns the id (POST).
// The envelope timestamps are applied to a copy of doc; doc itself is not
// modified. It returns the id reported by the engine.
func (c *Client) Upsert(ctx context.Context, index, docType, id string, doc map[string]any) (string, error) {
	if index == "" || docType == "" {
		return "", apperrors.Invalid("upsert requires index and document type, got %q/%q", index, docType)
	}

	var stored map[string]any
	if id != "" && needsStored(doc) {
		existing, err := c.GetByID(ctx, index, docType, id)
		switch {
		case err == nil:
			stored = existing
		case errors.Is(err, apperrors.ErrDocumentNotFound):
		default:
			return "", fmt.Errorf("reading stored document %s/%s/%s: %w", index, docType, id, err)
		}
	}
	body, err := encode(applyEnvelope(doc, stored, c.now()))
	if err != nil {
		return "", fmt.Errorf("encoding document for %s/%s: %w", index, docType, err)
	}
	c.logger.Debug("writing document", "index", index, "type", docType, "id", id)

	status, data, err := c.perform(ctx, "upsert", esapi.IndexRequest{
		Index:        url.PathEscape(index),
		DocumentType: url.PathEscape(docType),
		DocumentID:   url.PathEscape(id),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("writing to %s/%s: %w", index, docType, err)
	}
	if status/100 != 2 {
		return "", apperrors.FromStatus(status, data)
	}
	var resp struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.ID == "" {
		return "", apperrors.Newf(apperrors.ErrIndexEngine, status, "write response carries no _id: %s", truncate(data))
	}
	return resp.ID, nil
}

// GetByID fetches the source of the document at index/docType/id. An empty id
// is a caller error and is rejected before any request is made.
func (c *Client) GetByID(ctx context.Context, index, docType, id string) (map[string]any, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Invalid("GetByID requires a document id")
	}
	status, body, err := c.perform(ctx, "get", esapi.GetRequest{
		Index:        url.PathEscape(index),
		DocumentType: url.PathEscape(docType),
		DocumentID:   url.PathEscape(id),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s/%s: %w", index, docType, id, err)
	}
	if status/100 != 2 {
		return nil, apperrors.FromStatus(status, body)
	}
	var resp struct {
		Found  *bool          `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexEngine, status, "decoding document %s: %v", id, err)
	}
	if (resp.Found != nil && !*resp.Found) || resp.Source == nil {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "%s/%s/%s", index, docType, id)
	}
	return resp.Source, nil
}

// Delete removes the document at index/docType/id and reports whether the
// engine acknowledged it. Only an empty id produces an error; engine and
// transport failures are logged and reported as false.
func (c *Client) Delete(ctx context.Context, index, docType, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperrors.Invalid("Delete requires a document id")
	}
	status, body, err := c.perform(ctx, "delete", esapi.DeleteRequest{
		Index:        url.PathEscape(index),
		DocumentType: url.PathEscape(docType),
		DocumentID:   url.PathEscape(id),
	})
	if err != nil {
		c.logger.Error("delete failed", "index", index, "type", docType, "id", id, "error", err)
		return false, nil
	}
	if status/100 != 2 {
		c.logger.Warn("delete rejected", "index", index, "type", docType, "id", id, "status", status, "body", truncate(body))
		return false, nil
	}
	return true, nil
}

// Ping checks that the engine answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.perform(ctx, "ping", esapi.InfoRequest{})
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return apperrors.FromStatus(status, body)
	}
	return nil
}

// perform sends req and returns the status and body. Only transport
// failures and an open breaker are errors; the caller interprets the status.
func (c *Client) perform(ctx context.Context, op string, req esapi.Request) (int, []byte, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			c.metrics.IndexRequestsTotal.WithLabelValues(op, "rejected").Inc()
			return 0, nil, err
		}
	}

	start := time.Now()
	res, err := req.Do(ctx, c.transport)
	c.metrics.IndexRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if c.breaker != nil {
		c.breaker.Record(err != nil || res.StatusCode >= 500)
	}
	if err != nil {
		c.metrics.IndexRequestsTotal.WithLabelValues(op, "error").Inc()
		return 0, nil, err
	}
	defer res.Body.Close()
	c.metrics.IndexRequestsTotal.WithLabelValues(op, strconv.Itoa(res.StatusCode/100)+"xx").Inc()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("reading %s response: %w", op, err)
	}
	c.logger.Debug("index engine response", "op", op, "status", res.StatusCode, "bytes", len(data))
	return res.StatusCode, data, nil
}

// encode renders v as a JSON request body.
func encode(v any) (io.Reader, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
