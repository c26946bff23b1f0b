package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads a counter from the default registry.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}

			return m.GetCounter().GetValue()
		}
	}

	return 0
}

func TestCountersAreRegistered(t *testing.T) {
	labels := map[string]string{"outcome": "imported"}

	before := counterValue(t, "entity_loader_rows_total", labels)
	RowsTotal.WithLabelValues("imported").Inc()
	assert.InDelta(t, before+1, counterValue(t, "entity_loader_rows_total", labels), 1e-9)

	RecordsTotal.WithLabelValues("Book", "created").Add(2)
	assert.GreaterOrEqual(t,
		counterValue(t, "entity_loader_records_total", map[string]string{"entity": "Book", "outcome": "created"}), 2.0)
}

func TestWriteTextfile(t *testing.T) {
	TruncationsTotal.WithLabelValues("Book").Inc()

	path := filepath.Join(t.TempDir(), "entity_loader.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `entity_loader_truncations_total{entity="Book"}`)
}
