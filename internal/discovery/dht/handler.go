package dht

import (
	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                              消息分发
// ============================================================================

// handleDatagram 处理一个收到的数据报
//
// 头部无效的数据报直接丢弃。任何合法消息的发送者都会被加入路由表；
// 请求在此应答，响应交给跟踪器匹配。
func (d *DHT) handleDatagram(data []byte, from types.Endpoint) {
	h, payload, err := message.Unmarshal(data)
	if err != nil {
		d.metrics.RecordDropped(err)
		logger.Debug("丢弃无效数据报", "from", from, "error", err)
		return
	}
	d.metrics.RecordReceived(h.Type)

	if h.SourceID != d.self {
		d.table.Push(h.SourceID, from)
	}

	switch h.Type {
	case message.TypePingRequest:
		d.handlePing(h, from)
	case message.TypeStoreRequest:
		d.handleStore(h, payload, from)
	case message.TypeFindPeerRequest:
		d.handleFindPeer(h, payload, from)
	case message.TypeFindValueRequest:
		d.handleFindValue(h, payload, from)
	default:
		if err := d.tracker.HandleNewResponse(from, h, payload); err != nil {
			logger.Debug("丢弃无关联响应", "from", from, "type", h.Type, "error", err)
		}
	}
}

func (d *DHT) handlePing(h message.Header, from types.Endpoint) {
	d.reply(h, &message.PingResponse{}, from)
}

func (d *DHT) handleStore(h message.Header, payload []byte, from types.Endpoint) {
	var req message.StoreRequest
	if err := message.UnmarshalBody(payload, &req); err != nil {
		d.metrics.RecordDropped(err)
		logger.Debug("STORE 请求无效", "from", from, "error", err)
		return
	}
	d.values.Put(req.Key, req.Value)
	logger.Debug("已保存值", "key", req.Key.ShortString(), "from", from, "size", len(req.Value))
}

func (d *DHT) handleFindPeer(h message.Header, payload []byte, from types.Endpoint) {
	var req message.FindPeerRequest
	if err := message.UnmarshalBody(payload, &req); err != nil {
		d.metrics.RecordDropped(err)
		logger.Debug("FIND_PEER 请求无效", "from", from, "error", err)
		return
	}
	peers := d.table.Closest(req.Target, d.config.BucketSize)
	d.reply(h, &message.FindPeerResponse{Peers: peers}, from)
}

func (d *DHT) handleFindValue(h message.Header, payload []byte, from types.Endpoint) {
	var req message.FindValueRequest
	if err := message.UnmarshalBody(payload, &req); err != nil {
		d.metrics.RecordDropped(err)
		logger.Debug("FIND_VALUE 请求无效", "from", from, "error", err)
		return
	}
	if value, ok := d.values.Get(req.Key); ok {
		d.reply(h, &message.FindValueResponse{Value: value}, from)
		return
	}
	peers := d.table.Closest(req.Key, d.config.BucketSize)
	d.reply(h, &message.FindPeerResponse{Peers: peers}, from)
}

func (d *DHT) reply(h message.Header, body message.Body, to types.Endpoint) {
	if err := d.tracker.SendResponse(h.Token, body, to); err != nil {
		logger.Debug("发送响应失败", "to", to, "type", body.Type(), "error", err)
	}
}
