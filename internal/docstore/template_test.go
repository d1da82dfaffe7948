package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/metrics"
)

func TestEnsureDefaultTemplate(t *testing.T) {
	engine, srv := newFakeEngine(t)
	m := metrics.New(prometheus.NewRegistry())
	mgr := NewTemplateManager(New(srv.URL, WithMetrics(m)), "configservice", "5s")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.EnsureDefaultTemplate(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, mgr.EnsureDefaultTemplate(context.Background()))

	tpl := engine.templates["configservice"]
	require.NotNil(t, tpl)
	assert.Equal(t, "*", tpl["template"])
	assert.Equal(t, "5s", tpl["settings"].(map[string]any)["index.refresh_interval"])

	dynamic := tpl["mappings"].(map[string]any)["_default_"].(map[string]any)["dynamic_templates"].([]any)
	require.Len(t, dynamic, 1)
	mapping := dynamic[0].(map[string]any)["string_fields"].(map[string]any)["mapping"].(map[string]any)
	raw := mapping["fields"].(map[string]any)["raw"].(map[string]any)
	assert.Equal(t, "keyword", raw["type"])
	assert.Equal(t, "256", fmt.Sprint(raw["ignore_above"]))

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.TemplateInstallsTotal.WithLabelValues(metrics.ResultOK)), 1.0)
}

func TestEnsureDefaultTemplateFailure(t *testing.T) {
	mgr := NewTemplateManager(New("http://127.0.0.1:1"), "configservice", "5s")
	assert.Error(t, mgr.EnsureDefaultTemplate(context.Background()))
}
