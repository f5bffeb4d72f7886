package dht

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/lookup"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/routing"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/store"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/tracker"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("dht")

// ============================================================================
//                              DHT 结构
// ============================================================================

// DHT Kademlia 节点引擎
//
// 持有路由表、本地值存储、请求跟踪器和传输层。
// Run 驱动接收循环和周期刷新；Join、Save、Load、Ping 可在任意 goroutine 调用。
type DHT struct {
	config *Config
	self   types.ID
	clock  clock.Clock

	transport interfaces.Transport
	table     *routing.Table
	values    *store.ValueStore
	router    *tracker.Router
	tracker   *tracker.Tracker
	metrics   *Metrics
	deps      lookup.Deps

	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New 创建 DHT
func New(transport interfaces.Transport, opts ...ConfigOption) (*DHT, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Random == nil {
		cfg.Random = crand.Reader
	}
	if cfg.ID.IsZero() {
		id, err := types.RandomID(cfg.Random)
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		cfg.ID = id
	}

	d := &DHT{
		config:    cfg,
		self:      cfg.ID,
		clock:     cfg.Clock,
		transport: transport,
		table:     routing.NewTable(cfg.ID, cfg.BucketSize),
		values:    store.New(cfg.MaxValues, cfg.ValueTTL),
		router:    tracker.NewRouter(cfg.Clock),
		stopCh:    make(chan struct{}),
	}
	d.tracker = tracker.New(d.self, transport, d.router, cfg.Random)

	metrics, err := NewMetrics(cfg.Registerer, d.table.PeerCount, d.router.Pending)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	d.metrics = metrics

	d.deps = lookup.Deps{
		Self:                  d.self,
		Tracker:               &instrumentedTracker{tracker: d.tracker, metrics: metrics},
		Table:                 d.table,
		BucketSize:            cfg.BucketSize,
		Concurrency:           cfg.Concurrency,
		Timeout:               cfg.RequestTimeout,
		InitialContactTimeout: cfg.InitialContactTimeout,
	}

	logger.Debug("DHT 已创建", "id", d.self, "bucketSize", cfg.BucketSize)
	return d, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Run 运行接收循环，直到 ctx 取消或 Stop 被调用
//
// ctx 取消时停止 DHT 并返回 ctx.Err()；Stop 导致的退出返回 ErrRunAborted。
// 同一时刻只能有一个 Run，已停止的 DHT 不能再次运行。
func (d *DHT) Run(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrRunAborted
	}
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	logger.Info("DHT 开始运行", "id", d.self, "endpoints", d.transport.LocalEndpoints())

	recvErr := make(chan error, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		recvErr <- d.receiveLoop()
	}()

	if d.config.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.refreshLoop()
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
		d.Stop()
	case <-d.stopCh:
		err = ErrRunAborted
	case err = <-recvErr:
		if d.stopped.Load() {
			err = ErrRunAborted
		} else {
			logger.Error("接收循环异常退出", "error", err)
			d.Stop()
		}
	}

	d.wg.Wait()
	logger.Info("DHT 已停止运行", "id", d.self)
	return err
}

// Stop 停止 DHT
//
// 关闭传输层并以 ErrRunAborted 结束所有等待中的请求。可重复调用。
func (d *DHT) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stopCh)
		if err := d.transport.Close(); err != nil {
			logger.Debug("关闭传输层失败", "error", err)
		}
		if n := d.tracker.Abort(ErrRunAborted); n > 0 {
			logger.Debug("已中止等待中的请求", "count", n)
		}
	})
}

// Running 返回 Run 是否正在执行
func (d *DHT) Running() bool {
	return d.running.Load()
}

func (d *DHT) receiveLoop() error {
	for {
		data, from, err := d.transport.Receive()
		if err != nil {
			if errors.Is(err, interfaces.ErrTransportClosed) {
				return ErrRunAborted
			}
			return fmt.Errorf("receive: %w", err)
		}
		d.handleDatagram(data, from)
	}
}

// refreshLoop 周期刷新路由表
func (d *DHT) refreshLoop() {
	defer d.wg.Done()

	ticker := d.clock.Ticker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			n := lookup.StartRefresh(d.deps, nil)
			logger.Debug("周期刷新路由表", "targets", n, "peers", d.table.PeerCount())
		}
	}
}

// ============================================================================
//                              公共操作
// ============================================================================

// Join 通过种子端点加入网络
//
// seeds 为空时使用配置的 BootstrapPeers。
func (d *DHT) Join(ctx context.Context, seeds ...types.Endpoint) error {
	if len(seeds) == 0 {
		seeds = d.config.BootstrapPeers
	}
	if d.stopped.Load() {
		return NewDHTError("join", ErrRunAborted, "")
	}

	started := d.clock.Now()
	done := make(chan error, 1)
	lookup.StartJoin(seeds, d.deps, func(err error) {
		d.metrics.RecordOperation("join", started, d.clock.Now(), err)
		done <- err
	})
	if err := d.await(ctx, done); err != nil {
		return NewDHTError("join", err, "")
	}
	logger.Info("已加入网络", "peers", d.table.PeerCount())
	return nil
}

// Save 把 value 保存到距 key 摘要最近的节点上
func (d *DHT) Save(ctx context.Context, key, value []byte) error {
	return d.Put(ctx, types.HashID(key), value)
}

// Put 把 value 保存到距 id 最近的节点上
func (d *DHT) Put(ctx context.Context, id types.ID, value []byte) error {
	if d.stopped.Load() {
		return NewDHTError("save", ErrRunAborted, "")
	}

	started := d.clock.Now()
	done := make(chan error, 1)
	value = append([]byte(nil), value...)
	lookup.StartStoreValue(id, value, d.deps, func(err error) {
		d.metrics.RecordOperation("save", started, d.clock.Now(), err)
		done <- err
	})
	if err := d.await(ctx, done); err != nil {
		return NewDHTError("save", err, id.ShortString())
	}
	return nil
}

// Load 在网络中查找 key 摘要对应的值
func (d *DHT) Load(ctx context.Context, key []byte) ([]byte, error) {
	return d.Get(ctx, types.HashID(key))
}

// Get 在网络中查找 id 对应的值
func (d *DHT) Get(ctx context.Context, id types.ID) ([]byte, error) {
	if d.stopped.Load() {
		return nil, NewDHTError("load", ErrRunAborted, "")
	}

	type result struct {
		value []byte
		err   error
	}
	started := d.clock.Now()
	done := make(chan result, 1)
	lookup.StartFindValue(id, d.deps, func(value []byte, err error) {
		d.metrics.RecordOperation("load", started, d.clock.Now(), err)
		done <- result{value: value, err: err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			return nil, NewDHTError("load", r.err, id.ShortString())
		}
		return r.value, nil
	case <-ctx.Done():
		return nil, NewDHTError("load", ctx.Err(), id.ShortString())
	case <-d.stopCh:
		return nil, NewDHTError("load", ErrRunAborted, id.ShortString())
	}
}

// Ping 向端点发送 PING 并返回对端标识符
func (d *DHT) Ping(ctx context.Context, ep types.Endpoint) (types.ID, error) {
	if d.stopped.Load() {
		return types.ID{}, NewDHTError("ping", ErrRunAborted, "")
	}

	type result struct {
		id  types.ID
		err error
	}
	started := d.clock.Now()
	done := make(chan result, 1)
	finish := func(r result) {
		d.metrics.RecordOperation("ping", started, d.clock.Now(), r.err)
		done <- r
	}
	d.deps.Tracker.SendRequest(&message.PingRequest{}, ep, d.config.RequestTimeout,
		func(_ types.Endpoint, h message.Header, _ []byte) {
			if h.Type != message.TypePingResponse {
				finish(result{err: ErrUnexpectedResponse})
				return
			}
			finish(result{id: h.SourceID})
		},
		func(err error) {
			finish(result{err: err})
		})

	select {
	case r := <-done:
		if r.err != nil {
			return types.ID{}, NewDHTError("ping", r.err, ep.String())
		}
		return r.id, nil
	case <-ctx.Done():
		return types.ID{}, NewDHTError("ping", ctx.Err(), ep.String())
	case <-d.stopCh:
		return types.ID{}, NewDHTError("ping", ErrRunAborted, ep.String())
	}
}

func (d *DHT) await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopCh:
		return ErrRunAborted
	}
}

// ============================================================================
//                              查询
// ============================================================================

// ID 返回本节点标识符
func (d *DHT) ID() types.ID {
	return d.self
}

// PeerCount 返回路由表中的节点数
func (d *DHT) PeerCount() int {
	return d.table.PeerCount()
}

// Peers 返回路由表中所有节点
func (d *DHT) Peers() []types.Peer {
	return d.table.Peers()
}

// ClosestPeers 返回路由表中距 target 最近的 n 个节点
func (d *DHT) ClosestPeers(target types.ID, n int) []types.Peer {
	return d.table.Closest(target, n)
}

// StoredValues 返回本地保存的值数量
func (d *DHT) StoredValues() int {
	return d.values.Len()
}

// LocalEndpoints 返回传输层监听的端点
func (d *DHT) LocalEndpoints() []types.Endpoint {
	return d.transport.LocalEndpoints()
}

// Config 返回配置
func (d *DHT) Config() Config {
	return *d.config
}
