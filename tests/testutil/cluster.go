// Package testutil 提供测试辅助工具
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/internal/core/transport/memory"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Cluster 进程内网络上的一组运行中的 DHT 节点
//
// 示例:
//
//	c := testutil.NewCluster(t, 10, dht.WithRequestTimeout(200*time.Millisecond))
//	c.JoinAll(ctx)
//	err := c.Nodes[3].Save(ctx, key, value)
type Cluster struct {
	t       *testing.T
	Network *memory.Network
	Nodes   []*dht.DHT
	runs    []chan error
	stop    sync.Once
}

// NewCluster 创建并启动 n 个节点
//
// 测试结束时自动停止所有节点。
func NewCluster(t *testing.T, n int, opts ...dht.ConfigOption) *Cluster {
	t.Helper()

	c := &Cluster{t: t, Network: memory.NewNetwork()}
	for i := 0; i < n; i++ {
		c.AddNode(opts...)
	}
	t.Cleanup(c.Stop)
	return c
}

// AddNode 向集群添加一个运行中的节点
func (c *Cluster) AddNode(opts ...dht.ConfigOption) *dht.DHT {
	c.t.Helper()

	tr, err := c.Network.NewTransport()
	require.NoError(c.t, err)

	d, err := dht.New(tr, opts...)
	require.NoError(c.t, err)

	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()
	Eventually(c.t, 5*time.Second, d.Running, "节点应开始运行")

	c.Nodes = append(c.Nodes, d)
	c.runs = append(c.runs, done)
	return d
}

// Endpoint 返回第 i 个节点的端点
func (c *Cluster) Endpoint(i int) types.Endpoint {
	return c.Nodes[i].LocalEndpoints()[0]
}

// JoinAll 除第一个节点外，依次通过第一个节点加入网络
func (c *Cluster) JoinAll(ctx context.Context) {
	c.t.Helper()

	seed := c.Endpoint(0)
	for _, d := range c.Nodes[1:] {
		require.NoError(c.t, d.Join(ctx, seed))
	}
}

// Stop 停止所有节点并等待 Run 返回，可重复调用
func (c *Cluster) Stop() {
	c.stop.Do(func() {
		for i, d := range c.Nodes {
			d.Stop()
			select {
			case <-c.runs[i]:
			case <-time.After(5 * time.Second):
				c.t.Errorf("节点 %d 未能停止", i)
			}
		}
	})
}
