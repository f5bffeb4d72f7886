package kaddht

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/transport/memory"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

func newMemoryNode(t *testing.T, network *memory.Network, opts ...Option) *Node {
	t.Helper()

	tr, err := network.NewTransport()
	require.NoError(t, err)

	opts = append([]Option{
		WithTransport(tr),
		WithRegisterer(prometheus.NewRegistry()),
		WithDHTOptions(dht.WithRequestTimeout(200 * time.Millisecond)),
	}, opts...)

	node, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })
	return node
}

func TestNodeLifecycle(t *testing.T) {
	network := memory.NewNetwork()
	node := newMemoryNode(t, network)

	assert.Equal(t, StateIdle, node.State())
	assert.False(t, node.ID().IsZero())

	_, err := node.Load(context.Background(), []byte("k"))
	assert.ErrorIs(t, err, ErrNotStarted)

	ctx := context.Background()
	require.NoError(t, node.Start(ctx))
	assert.True(t, node.IsRunning())
	assert.ErrorIs(t, node.Start(ctx), ErrAlreadyStarted)
	assert.Len(t, node.LocalEndpoints(), 1)

	require.NoError(t, node.Stop(ctx))
	assert.Equal(t, StateStopped, node.State())
	assert.ErrorIs(t, node.Start(ctx), ErrNodeClosed)
	assert.NoError(t, node.Close())

	_, err = node.Load(ctx, []byte("k"))
	assert.ErrorIs(t, err, ErrNodeClosed)
}

func TestNodeCloseWithoutStart(t *testing.T) {
	node := newMemoryNode(t, memory.NewNetwork())
	require.NoError(t, node.Close())
	assert.Equal(t, StateStopped, node.State())
	assert.ErrorIs(t, node.Start(context.Background()), ErrNodeClosed)
}

// freeUDPAddr 返回一个当前空闲的本地 UDP 地址
func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

// requireUDPFree 断言地址可以重新绑定
func requireUDPFree(t *testing.T, addr string) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", addr)
	require.NoError(t, err, "socket 应已释放: %s", addr)
	require.NoError(t, conn.Close())
}

func TestNodeCloseWithoutStartReleasesUDP(t *testing.T) {
	addr := freeUDPAddr(t)

	for i := 0; i < 2; i++ {
		node, err := New(context.Background(),
			WithListenAddrs(addr),
			WithRegisterer(prometheus.NewRegistry()))
		require.NoError(t, err, "第 %d 次绑定", i+1)
		assert.Equal(t, addr, node.LocalEndpoints()[0].String())
		require.NoError(t, node.Close())
		assert.NoError(t, node.Close(), "重复关闭应无副作用")
	}
	requireUDPFree(t, addr)

	t.Log("✅ 未启动节点关闭后释放 UDP socket")
}

func TestNodeBuildFailureReleasesUDP(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newMemoryNode(t, memory.NewNetwork(), WithRegisterer(reg))
	require.NotNil(t, first)

	// 同一 registry 重复注册指标，DHT 构建失败时传输层已绑定
	addr := freeUDPAddr(t)
	_, err := New(context.Background(), WithListenAddrs(addr), WithRegisterer(reg))
	require.Error(t, err)
	requireUDPFree(t, addr)

	_, err = Start(context.Background(), WithListenAddrs(addr), WithRegisterer(reg))
	require.Error(t, err)
	requireUDPFree(t, addr)
}

func TestNodeStopReleasesUDP(t *testing.T) {
	addr := freeUDPAddr(t)
	ctx := context.Background()

	node, err := Start(ctx, WithListenAddrs(addr), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, node.Stop(ctx))
	requireUDPFree(t, addr)
}

func TestNodeOptions(t *testing.T) {
	id := types.HashID([]byte("node"))
	node := newMemoryNode(t, memory.NewNetwork(), WithID(id.String()))
	assert.Equal(t, id, node.ID())

	_, err := New(context.Background(), WithID("zz"))
	assert.ErrorIs(t, err, types.ErrInvalidID)

	_, err = New(context.Background(), WithListenAddrs("bad"))
	assert.ErrorIs(t, err, types.ErrInvalidEndpoint)

	_, err = New(context.Background(), WithListenPort(70000))
	assert.Error(t, err)

	_, err = New(context.Background(), WithConfig(nil))
	assert.Error(t, err)

	_, err = New(context.Background(), WithTransport(nil))
	assert.Error(t, err)
}

func TestNodeInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DHT.BucketSize = 0

	_, err := New(context.Background(), WithConfig(cfg))
	assert.Error(t, err)
}

func TestNodeSaveLoad(t *testing.T) {
	network := memory.NewNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seed, err := Start(ctx,
		WithTransport(mustTransport(t, network)),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer seed.Close()
	seedAddr := seed.LocalEndpoints()[0].String()

	nodes := make([]*Node, 0, 5)
	for i := 0; i < 5; i++ {
		n := newMemoryNode(t, network, WithBootstrapPeers(seedAddr), WithAutoJoin(false))
		require.NoError(t, n.Start(ctx))
		require.NoError(t, n.Join(ctx))
		nodes = append(nodes, n)
	}
	assert.Positive(t, seed.PeerCount())

	require.NoError(t, nodes[0].Save(ctx, []byte("greeting"), []byte("hello")))

	for _, n := range nodes[1:] {
		var got []byte
		require.Eventually(t, func() bool {
			got, err = n.Load(ctx, []byte("greeting"))
			return err == nil
		}, 5*time.Second, 50*time.Millisecond)
		assert.Equal(t, []byte("hello"), got)
	}

	id, err := nodes[0].Ping(ctx, seedAddr)
	require.NoError(t, err)
	assert.Equal(t, seed.ID(), id)

	_, err = nodes[0].Ping(ctx, "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestNodeAutoJoin(t *testing.T) {
	network := memory.NewNetwork()
	ctx := context.Background()

	seed := newMemoryNode(t, network)
	require.NoError(t, seed.Start(ctx))

	node := newMemoryNode(t, network, WithBootstrapPeers(seed.LocalEndpoints()[0].String()))
	require.NoError(t, node.Start(ctx))

	require.Eventually(t, func() bool {
		return node.PeerCount() > 0 && seed.PeerCount() > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, seed.ID(), node.Peers()[0].ID)
}

func TestNodeState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", NodeState(99).String())
}

func mustTransport(t *testing.T, network *memory.Network) *memory.Transport {
	t.Helper()
	tr, err := network.NewTransport()
	require.NoError(t, err)
	return tr
}
