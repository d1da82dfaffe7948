package docstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
)

// TemplateManager installs the catch-all index template that applies to every
// index configsync creates.
type TemplateManager struct {
	client          *Client
	name            string
	refreshInterval string
	group           singleflight.Group
}

// NewTemplateManager returns a manager that installs template name with the
// given refresh interval (for example "5s").
func NewTemplateManager(client *Client, name, refreshInterval string) *TemplateManager {
	return &TemplateManager{client: client, name: name, refreshInterval: refreshInterval}
}

// EnsureDefaultTemplate PUTs the template. The call is idempotent; concurrent
// callers share a single request.
func (m *TemplateManager) EnsureDefaultTemplate(ctx context.Context) error {
	_, err, _ := m.group.Do(m.name, func() (any, error) {
		return nil, m.install(ctx)
	})
	return err
}

func (m *TemplateManager) install(ctx context.Context) error {
	reader, err := encode(DefaultTemplate(m.refreshInterval))
	if err != nil {
		return fmt.Errorf("encoding template %s: %w", m.name, err)
	}
	status, body, err := m.client.perform(ctx, "template", esapi.IndicesPutTemplateRequest{
		Name: url.PathEscape(m.name),
		Body: reader,
	})
	if err != nil {
		m.client.metrics.TemplateInstallsTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("installing template %s: %w", m.name, err)
	}
	if status/100 != 2 {
		m.client.metrics.TemplateInstallsTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("installing template %s: %w", m.name, apperrors.FromStatus(status, body))
	}
	m.client.metrics.TemplateInstallsTotal.WithLabelValues(metrics.ResultOK).Inc()
	m.client.logger.Info("index template installed", "template", m.name, "refresh_interval", m.refreshInterval)
	return nil
}

// DefaultTemplate is the body of the catch-all template: every index gets the
// refresh interval, and every string field is indexed as analyzed text with
// an exact-match "raw" keyword sub-field.
func DefaultTemplate(refreshInterval string) map[string]any {
	return map[string]any{
		"template": "*",
		"settings": map[string]any{
			"index.refresh_interval": refreshInterval,
		},
		"mappings": map[string]any{
			"_default_": map[string]any{
				"dynamic_templates": []any{
					map[string]any{
						"string_fields": map[string]any{
							"match":              "*",
							"match_mapping_type": "string",
							"mapping": map[string]any{
								"type": "text",
								"fields": map[string]any{
									"raw": map[string]any{
										"type":         "keyword",
										"ignore_above": 256,
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
