// Package message 实现 DHT 数据报的二进制编解码
//
// 数据报格式：
//
//	[version:1][type:1][source_id:20][token:20][body...]
//
// 消息体按类型区分：
//
//	PING_REQUEST / PING_RESPONSE     空
//	STORE_REQUEST                    key:20 + value:blob
//	FIND_PEER_REQUEST                target:20
//	FIND_PEER_RESPONSE               count:u16 + count * (id:20 + endpoint)
//	FIND_VALUE_REQUEST               key:20
//	FIND_VALUE_RESPONSE              value:blob
//
//	blob     = len:uvarint + bytes
//	endpoint = family:1 (4|6) + addr:4|16 + port:u16
//
// 定宽整数均为大端序。解码严格：任何截断或多余字节都返回具体错误。
package message

import (
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Version1 当前唯一支持的协议版本
const Version1 uint8 = 1

// HeaderSize 头部字节数
const HeaderSize = 2 + 2*types.IDBytes

// MaxPeers FIND_PEER_RESPONSE 允许携带的最大节点数
const MaxPeers = 1024

// ============================================================================
//                              消息类型
// ============================================================================

// Type 消息类型
type Type uint8

const (
	// TypePingRequest PING 请求
	TypePingRequest Type = iota
	// TypePingResponse PING 响应
	TypePingResponse
	// TypeStoreRequest STORE 请求
	TypeStoreRequest
	// TypeFindPeerRequest FIND_PEER 请求
	TypeFindPeerRequest
	// TypeFindPeerResponse FIND_PEER 响应
	TypeFindPeerResponse
	// TypeFindValueRequest FIND_VALUE 请求
	TypeFindValueRequest
	// TypeFindValueResponse FIND_VALUE 响应
	TypeFindValueResponse

	typeCount
)

// String 返回消息类型的字符串表示
func (t Type) String() string {
	switch t {
	case TypePingRequest:
		return "PING_REQUEST"
	case TypePingResponse:
		return "PING_RESPONSE"
	case TypeStoreRequest:
		return "STORE_REQUEST"
	case TypeFindPeerRequest:
		return "FIND_PEER_REQUEST"
	case TypeFindPeerResponse:
		return "FIND_PEER_RESPONSE"
	case TypeFindValueRequest:
		return "FIND_VALUE_REQUEST"
	case TypeFindValueResponse:
		return "FIND_VALUE_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// IsRequest 是否为请求类型
func (t Type) IsRequest() bool {
	switch t {
	case TypePingRequest, TypeStoreRequest, TypeFindPeerRequest, TypeFindValueRequest:
		return true
	default:
		return false
	}
}

// Valid 是否为已知类型
func (t Type) Valid() bool {
	return t < typeCount
}

// ============================================================================
//                              头部
// ============================================================================

// Header 数据报头部
type Header struct {
	Version  uint8
	Type     Type
	SourceID types.ID
	Token    types.ID
}

// ============================================================================
//                              消息体
// ============================================================================

// Body 消息体
type Body interface {
	// Type 返回消息体对应的消息类型
	Type() Type

	appendTo(b []byte) []byte
	decode(r *reader) error
}

// PingRequest PING 请求
type PingRequest struct{}

// PingResponse PING 响应
type PingResponse struct{}

// StoreRequest STORE 请求
type StoreRequest struct {
	Key   types.ID
	Value []byte
}

// FindPeerRequest FIND_PEER 请求
type FindPeerRequest struct {
	Target types.ID
}

// FindPeerResponse FIND_PEER 响应
type FindPeerResponse struct {
	Peers []types.Peer
}

// FindValueRequest FIND_VALUE 请求
type FindValueRequest struct {
	Key types.ID
}

// FindValueResponse FIND_VALUE 响应
type FindValueResponse struct {
	Value []byte
}

func (*PingRequest) Type() Type       { return TypePingRequest }
func (*PingResponse) Type() Type      { return TypePingResponse }
func (*StoreRequest) Type() Type      { return TypeStoreRequest }
func (*FindPeerRequest) Type() Type   { return TypeFindPeerRequest }
func (*FindPeerResponse) Type() Type  { return TypeFindPeerResponse }
func (*FindValueRequest) Type() Type  { return TypeFindValueRequest }
func (*FindValueResponse) Type() Type { return TypeFindValueResponse }

// NewBody 按消息类型创建空消息体
func NewBody(t Type) (Body, error) {
	switch t {
	case TypePingRequest:
		return &PingRequest{}, nil
	case TypePingResponse:
		return &PingResponse{}, nil
	case TypeStoreRequest:
		return &StoreRequest{}, nil
	case TypeFindPeerRequest:
		return &FindPeerRequest{}, nil
	case TypeFindPeerResponse:
		return &FindPeerResponse{}, nil
	case TypeFindValueRequest:
		return &FindValueRequest{}, nil
	case TypeFindValueResponse:
		return &FindValueResponse{}, nil
	default:
		return nil, ErrUnknownMessageType
	}
}
