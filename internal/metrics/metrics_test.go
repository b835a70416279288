package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestNewRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ActiveChannels.Set(3)
	r.ConnectionsTotal.Inc()
	r.BytesIn.Add(128)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["multiserve_active_channels"])
	assert.True(t, names["multiserve_connections_total"])
	assert.True(t, names["multiserve_bytes_in_total"])
	assert.True(t, names["multiserve_dispatcher_pending_tasks"])
	assert.True(t, names["multiserve_request_duration_seconds"])
}

func TestActiveChannelsGaugeTracksSetValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	r.ActiveChannels.Set(5)
	assert.Equal(t, 5.0, gaugeValue(t, r.ActiveChannels))
}
