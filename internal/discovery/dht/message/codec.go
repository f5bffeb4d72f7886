package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-kaddht/pkg/types"
)

const (
	familyIPv4 byte = 4
	familyIPv6 byte = 6
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码一个完整数据报
//
// 编码是确定性的：同样的输入总是得到同样的字节。
func Marshal(source, token types.ID, body Body) []byte {
	b := make([]byte, 0, HeaderSize+64)
	b = append(b, Version1, byte(body.Type()))
	b = append(b, source[:]...)
	b = append(b, token[:]...)
	return body.appendTo(b)
}

func appendBlob(b, v []byte) []byte {
	b = append(b, varint.ToUvarint(uint64(len(v)))...)
	return append(b, v...)
}

func appendEndpoint(b []byte, ep types.Endpoint) []byte {
	addr := ep.Addr().Unmap()
	if addr.Is4() {
		a := addr.As4()
		b = append(b, familyIPv4)
		b = append(b, a[:]...)
	} else {
		a := addr.As16()
		b = append(b, familyIPv6)
		b = append(b, a[:]...)
	}
	return binary.BigEndian.AppendUint16(b, ep.Port())
}

func (*PingRequest) appendTo(b []byte) []byte  { return b }
func (*PingResponse) appendTo(b []byte) []byte { return b }

func (m *StoreRequest) appendTo(b []byte) []byte {
	b = append(b, m.Key[:]...)
	return appendBlob(b, m.Value)
}

func (m *FindPeerRequest) appendTo(b []byte) []byte {
	return append(b, m.Target[:]...)
}

func (m *FindPeerResponse) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(m.Peers)))
	for _, p := range m.Peers {
		b = append(b, p.ID[:]...)
		b = appendEndpoint(b, p.Endpoint)
	}
	return b
}

func (m *FindValueRequest) appendTo(b []byte) []byte {
	return append(b, m.Key[:]...)
}

func (m *FindValueResponse) appendTo(b []byte) []byte {
	return appendBlob(b, m.Value)
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码数据报头部
//
// 返回头部和剩余的消息体字节。消息体由调用方按 Header.Type 用 UnmarshalBody 解码。
func Unmarshal(data []byte) (Header, []byte, error) {
	var h Header
	r := &reader{buf: data}

	version, err := r.byte(ErrTruncatedHeader)
	if err != nil {
		return h, nil, err
	}
	if version != Version1 {
		return h, nil, fmt.Errorf("%w: %d", ErrUnknownProtocolVersion, version)
	}
	t, err := r.byte(ErrTruncatedHeader)
	if err != nil {
		return h, nil, err
	}
	if !Type(t).Valid() {
		return h, nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	h.Version = version
	h.Type = Type(t)

	if h.SourceID, err = r.id(); err != nil {
		return Header{}, nil, err
	}
	if h.Token, err = r.id(); err != nil {
		return Header{}, nil, err
	}
	return h, r.buf, nil
}

// UnmarshalBody 将 payload 解码到 body
//
// 解码必须恰好消耗全部字节，否则返回 ErrCorruptedBody。
func UnmarshalBody(payload []byte, body Body) error {
	r := &reader{buf: payload}
	if err := body.decode(r); err != nil {
		return err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptedBody, len(r.buf))
	}
	return nil
}

// Decode 解码完整数据报（头部 + 按类型解码的消息体）
func Decode(data []byte) (Header, Body, error) {
	h, payload, err := Unmarshal(data)
	if err != nil {
		return h, nil, err
	}
	body, err := NewBody(h.Type)
	if err != nil {
		return h, nil, err
	}
	if err := UnmarshalBody(payload, body); err != nil {
		return h, nil, err
	}
	return h, body, nil
}

// reader 字节游标
type reader struct {
	buf []byte
}

func (r *reader) byte(short error) (byte, error) {
	if len(r.buf) < 1 {
		return 0, short
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b, nil
}

func (r *reader) next(n int, short error) ([]byte, error) {
	if len(r.buf) < n {
		return nil, short
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b, nil
}

func (r *reader) id() (types.ID, error) {
	var id types.ID
	b, err := r.next(types.IDBytes, ErrTruncatedID)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

func (r *reader) uint16(short error) (uint16, error) {
	b, err := r.next(2, short)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) blob() ([]byte, error) {
	n, size, err := varint.FromUvarint(r.buf)
	if err != nil {
		if errors.Is(err, varint.ErrUnderflow) {
			return nil, ErrTruncatedSize
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBody, err)
	}
	r.buf = r.buf[size:]
	if n > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: blob length %d exceeds %d remaining bytes", ErrCorruptedBody, n, len(r.buf))
	}
	v := make([]byte, n)
	copy(v, r.buf[:n])
	r.buf = r.buf[n:]
	return v, nil
}

func (r *reader) endpoint() (types.Endpoint, error) {
	family, err := r.byte(ErrTruncatedEndpoint)
	if err != nil {
		return types.Endpoint{}, err
	}
	var addr netip.Addr
	switch family {
	case familyIPv4:
		b, err := r.next(4, ErrTruncatedAddress)
		if err != nil {
			return types.Endpoint{}, err
		}
		addr = netip.AddrFrom4([4]byte(b))
	case familyIPv6:
		b, err := r.next(16, ErrTruncatedAddress)
		if err != nil {
			return types.Endpoint{}, err
		}
		addr = netip.AddrFrom16([16]byte(b))
	default:
		return types.Endpoint{}, fmt.Errorf("%w: unknown address family %d", ErrCorruptedBody, family)
	}
	port, err := r.uint16(ErrTruncatedEndpoint)
	if err != nil {
		return types.Endpoint{}, err
	}
	return netip.AddrPortFrom(addr, port), nil
}

func (*PingRequest) decode(*reader) error  { return nil }
func (*PingResponse) decode(*reader) error { return nil }

func (m *StoreRequest) decode(r *reader) error {
	var err error
	if m.Key, err = r.id(); err != nil {
		return err
	}
	m.Value, err = r.blob()
	return err
}

func (m *FindPeerRequest) decode(r *reader) error {
	var err error
	m.Target, err = r.id()
	return err
}

func (m *FindPeerResponse) decode(r *reader) error {
	count, err := r.uint16(ErrTruncatedSize)
	if err != nil {
		return err
	}
	if count > MaxPeers {
		return fmt.Errorf("%w: %d peers exceeds limit %d", ErrCorruptedBody, count, MaxPeers)
	}
	peers := make([]types.Peer, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := r.id()
		if err != nil {
			return err
		}
		ep, err := r.endpoint()
		if err != nil {
			return err
		}
		peers = append(peers, types.Peer{ID: id, Endpoint: ep})
	}
	m.Peers = peers
	return nil
}

func (m *FindValueRequest) decode(r *reader) error {
	var err error
	m.Key, err = r.id()
	return err
}

func (m *FindValueResponse) decode(r *reader) error {
	var err error
	m.Value, err = r.blob()
	return err
}
