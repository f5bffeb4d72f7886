package message

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/pkg/types"
)

func testID(prefix string) types.ID {
	return types.MustParseID(prefix + strings.Repeat("0", types.IDHexLen-len(prefix)))
}

var (
	testSource = testID("a1")
	testToken  = testID("b2")
)

func samplePeers() []types.Peer {
	return []types.Peer{
		{ID: testID("01"), Endpoint: netip.MustParseAddrPort("10.0.0.1:27980")},
		{ID: testID("02"), Endpoint: netip.MustParseAddrPort("[2001:db8::1]:4000")},
	}
}

func sampleBodies() []Body {
	return []Body{
		&PingRequest{},
		&PingResponse{},
		&StoreRequest{Key: testID("c3"), Value: []byte("hello")},
		&FindPeerRequest{Target: testID("d4")},
		&FindPeerResponse{Peers: samplePeers()},
		&FindValueRequest{Key: testID("e5")},
		&FindValueResponse{Value: []byte{}},
	}
}

func TestMarshalHeader(t *testing.T) {
	data := Marshal(testSource, testToken, &FindPeerRequest{Target: testID("ff")})

	require.Len(t, data, HeaderSize+types.IDBytes)
	assert.Equal(t, Version1, data[0])
	assert.Equal(t, byte(TypeFindPeerRequest), data[1])
	assert.Equal(t, testSource[:], data[2:2+types.IDBytes])
	assert.Equal(t, testToken[:], data[2+types.IDBytes:HeaderSize])
}

func TestFindPeerRequestRoundTrip(t *testing.T) {
	target := testID("1234")
	data := Marshal(testSource, testToken, &FindPeerRequest{Target: target})

	h, payload, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: Version1, Type: TypeFindPeerRequest, SourceID: testSource, Token: testToken}, h)

	var body FindPeerRequest
	require.NoError(t, UnmarshalBody(payload, &body))
	assert.Equal(t, target, body.Target)

	t.Log("✅ FIND_PEER_REQUEST 往返测试通过")
}

func TestDecodeAllTypes(t *testing.T) {
	for _, body := range sampleBodies() {
		t.Run(body.Type().String(), func(t *testing.T) {
			data := Marshal(testSource, testToken, body)

			h, decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, body.Type(), h.Type)
			assert.Equal(t, body, decoded)
		})
	}
}

func TestTruncationAlwaysFails(t *testing.T) {
	for _, body := range sampleBodies() {
		data := Marshal(testSource, testToken, body)
		for n := 0; n < len(data); n++ {
			_, _, err := Decode(data[:n])
			assert.Error(t, err, "%s truncated to %d bytes", body.Type(), n)
		}
	}
}

func TestTruncationErrors(t *testing.T) {
	store := Marshal(testSource, testToken, &StoreRequest{Key: testID("c3"), Value: []byte("v")})
	peers := Marshal(testSource, testToken, &FindPeerResponse{Peers: samplePeers()[:1]})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedHeader},
		{"version only", []byte{Version1}, ErrTruncatedHeader},
		{"short source", store[:10], ErrTruncatedID},
		{"short token", store[:HeaderSize-1], ErrTruncatedID},
		{"short key", store[:HeaderSize+5], ErrTruncatedID},
		{"missing value size", store[:HeaderSize+types.IDBytes], ErrTruncatedSize},
		{"short value", store[:len(store)-1], ErrCorruptedBody},
		{"short count", peers[:HeaderSize+1], ErrTruncatedSize},
		{"missing family", peers[:HeaderSize+2+types.IDBytes], ErrTruncatedEndpoint},
		{"short address", peers[:HeaderSize+2+types.IDBytes+3], ErrTruncatedAddress},
		{"short port", peers[:len(peers)-1], ErrTruncatedEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnmarshalRejects(t *testing.T) {
	t.Run("unknown version", func(t *testing.T) {
		data := Marshal(testSource, testToken, &PingRequest{})
		data[0] = 2
		_, _, err := Unmarshal(data)
		assert.ErrorIs(t, err, ErrUnknownProtocolVersion)
	})

	t.Run("unknown type", func(t *testing.T) {
		data := Marshal(testSource, testToken, &PingRequest{})
		data[1] = 0x7f
		_, _, err := Unmarshal(data)
		assert.ErrorIs(t, err, ErrUnknownMessageType)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		data := Marshal(testSource, testToken, &FindValueRequest{Key: testID("01")})
		_, _, err := Decode(append(data, 0))
		assert.ErrorIs(t, err, ErrCorruptedBody)
	})

	t.Run("unknown address family", func(t *testing.T) {
		data := Marshal(testSource, testToken, &FindPeerResponse{Peers: samplePeers()[:1]})
		data[HeaderSize+2+types.IDBytes] = 5
		_, _, err := Decode(data)
		assert.ErrorIs(t, err, ErrCorruptedBody)
	})

	t.Run("too many peers", func(t *testing.T) {
		data := Marshal(testSource, testToken, &FindPeerResponse{})
		data[HeaderSize] = 0xff
		data[HeaderSize+1] = 0xff
		_, _, err := Decode(data)
		assert.ErrorIs(t, err, ErrCorruptedBody)
	})
}

func TestEndpointEncoding(t *testing.T) {
	mapped := netip.MustParseAddrPort("[::ffff:192.168.1.1]:80")
	data := Marshal(testSource, testToken, &FindPeerResponse{Peers: []types.Peer{{ID: testID("01"), Endpoint: mapped}}})

	// count(2) + id(20) + family(1) + v4(4) + port(2)
	assert.Len(t, data, HeaderSize+2+types.IDBytes+1+4+2)

	_, body, err := Decode(data)
	require.NoError(t, err)
	got := body.(*FindPeerResponse).Peers[0].Endpoint
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.1:80"), got)
}

func TestLargeValue(t *testing.T) {
	value := bytes.Repeat([]byte{0x5a}, 1000)
	data := Marshal(testSource, testToken, &FindValueResponse{Value: value})

	// 1000 需要两字节 uvarint
	assert.Len(t, data, HeaderSize+2+len(value))

	_, body, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, value, body.(*FindValueResponse).Value)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "FIND_VALUE_RESPONSE", TypeFindValueResponse.String())
	assert.Equal(t, "UNKNOWN", Type(99).String())
	assert.True(t, TypeStoreRequest.IsRequest())
	assert.False(t, TypePingResponse.IsRequest())
	assert.Equal(t, Type(0), TypePingRequest)
}
