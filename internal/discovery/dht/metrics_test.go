package dht

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/types"
	"github.com/dep2p/go-kaddht/tests/mocks"
)

// TestMetrics 测试指标记录
func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	d, _ := newTestDHT(t, WithRegisterer(reg))

	_, ping := request(types.HashID([]byte("a")), &message.PingRequest{})
	d.handleDatagram(ping, testEndpoint(2))

	bad := append([]byte(nil), ping...)
	bad[0] = 7
	d.handleDatagram(bad, testEndpoint(2))
	d.handleDatagram(ping[:3], testEndpoint(2))

	bad = append([]byte(nil), ping...)
	bad[1] = 0xff
	d.handleDatagram(bad, testEndpoint(2))

	m := d.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.received.WithLabelValues("PING_REQUEST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("version")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("type")))

	n, err := testutil.GatherAndCount(reg, "kaddht_routing_table_peers", "kaddht_pending_requests")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "kaddht_routing_table_peers" {
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}

	t.Log("✅ 指标测试通过")
}

// TestMetrics_DuplicateRegistration 测试重复注册失败
func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestDHT(t, WithRegisterer(reg))

	_, err := New(mocks.NewMockTransport(), WithRegisterer(reg))
	assert.Error(t, err)
}

// TestMetrics_Operations 测试操作计数
func TestMetrics_Operations(t *testing.T) {
	reg := prometheus.NewRegistry()
	d, _ := newTestDHT(t, WithRegisterer(reg))

	ctx := context.Background()
	assert.Error(t, d.Save(ctx, []byte("k"), []byte("v")))
	_, err := d.Load(ctx, []byte("k"))
	assert.Error(t, err)

	m := d.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("save", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("load", "error")))
}
