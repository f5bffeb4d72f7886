package tracker

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var testFrom = netip.MustParseAddrPort("127.0.0.1:27980")

// counter 记录回调触发次数
type counter struct {
	responses atomic.Int32
	errors    atomic.Int32
	mu        sync.Mutex
	lastErr   error
}

func (c *counter) onResponse(types.Endpoint, message.Header, []byte) {
	c.responses.Add(1)
}

func (c *counter) onError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.errors.Add(1)
}

func (c *counter) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func TestRouterResponse(t *testing.T) {
	r := NewRouter(clock.NewMock())
	token := types.NewRandomID()
	c := &counter{}

	require.NoError(t, r.Register(token, time.Second, c.onResponse, c.onError))
	assert.Equal(t, 1, r.Pending())

	h := message.Header{Version: message.Version1, Type: message.TypePingResponse, Token: token}
	require.NoError(t, r.HandleNewResponse(testFrom, h, nil))
	assert.Equal(t, int32(1), c.responses.Load())

	// 同一 token 的第二个响应无对应请求
	err := r.HandleNewResponse(testFrom, h, nil)
	assert.ErrorIs(t, err, ErrUnassociatedMessageID)
	assert.Equal(t, int32(1), c.responses.Load())
	assert.Equal(t, int32(0), c.errors.Load())
	assert.Equal(t, 0, r.Pending())

	t.Log("✅ 响应只触发一次")
}

func TestRouterTimeout(t *testing.T) {
	clk := clock.NewMock()
	r := NewRouter(clk)
	token := types.NewRandomID()
	c := &counter{}

	require.NoError(t, r.Register(token, time.Second, c.onResponse, c.onError))

	clk.Add(500 * time.Millisecond)
	assert.Equal(t, int32(0), c.errors.Load())

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return c.errors.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.err(), ErrTimedOut)

	// 超时后的响应被忽略
	h := message.Header{Token: token}
	assert.ErrorIs(t, r.HandleNewResponse(testFrom, h, nil), ErrUnassociatedMessageID)
	assert.Equal(t, int32(0), c.responses.Load())
}

func TestRouterZeroTimeout(t *testing.T) {
	r := NewRouter(clock.NewMock())
	token := types.NewRandomID()
	c := &counter{}

	require.NoError(t, r.Register(token, 0, c.onResponse, c.onError))

	// 零超时在注册时立即触发 onError
	assert.Equal(t, int32(1), c.errors.Load())
	assert.ErrorIs(t, c.err(), ErrTimedOut)
	assert.ErrorIs(t, r.HandleNewResponse(testFrom, message.Header{Token: token}, nil), ErrUnassociatedMessageID)
	assert.Equal(t, int32(0), c.responses.Load())
}

func TestRouterDuplicateToken(t *testing.T) {
	r := NewRouter(clock.NewMock())
	token := types.NewRandomID()
	c := &counter{}

	require.NoError(t, r.Register(token, time.Second, c.onResponse, c.onError))
	assert.ErrorIs(t, r.Register(token, time.Second, c.onResponse, c.onError), ErrTokenInUse)
}

func TestRouterCancel(t *testing.T) {
	clk := clock.NewMock()
	r := NewRouter(clk)
	token := types.NewRandomID()
	c := &counter{}

	require.NoError(t, r.Register(token, time.Second, c.onResponse, c.onError))
	assert.True(t, r.Cancel(token))
	assert.False(t, r.Cancel(token))

	clk.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), c.errors.Load())
	assert.Equal(t, int32(0), c.responses.Load())
}

func TestRouterAbort(t *testing.T) {
	r := NewRouter(clock.NewMock())
	errAborted := errors.New("aborted")

	counters := make([]*counter, 5)
	for i := range counters {
		counters[i] = &counter{}
		require.NoError(t, r.Register(types.NewRandomID(), time.Minute, counters[i].onResponse, counters[i].onError))
	}

	assert.Equal(t, 5, r.Abort(errAborted))
	assert.Equal(t, 0, r.Pending())
	for _, c := range counters {
		assert.Equal(t, int32(1), c.errors.Load())
		assert.ErrorIs(t, c.err(), errAborted)
	}
}

func TestRouterResponseRacesTimeout(t *testing.T) {
	// 真实时钟下让响应与超时竞争，每个 token 恰好触发一个回调
	r := NewRouter(clock.New())

	const n = 200
	counters := make([]*counter, n)
	tokens := make([]types.ID, n)
	for i := 0; i < n; i++ {
		counters[i] = &counter{}
		tokens[i] = types.NewRandomID()
		require.NoError(t, r.Register(tokens[i], time.Millisecond, counters[i].onResponse, counters[i].onError))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.HandleNewResponse(testFrom, message.Header{Token: tokens[i]}, nil)
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return r.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	for _, c := range counters {
		assert.Equal(t, int32(1), c.responses.Load()+c.errors.Load())
	}
}
