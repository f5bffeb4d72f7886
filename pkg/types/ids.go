// Package types 定义 go-kaddht 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"

	"lukechampine.com/blake3"
)

// ============================================================================
//                              ID - 标识符
// ============================================================================

const (
	// IDBits 标识符位宽
	IDBits = 160

	// IDBytes 标识符字节数
	IDBytes = IDBits / 8

	// IDHexLen 标识符十六进制字符串长度
	IDHexLen = IDBits / 4
)

// ID 定长标识符
//
// 同时用作节点在覆盖网络中的地址和内容键。
// 字节序为大端：ID[0] 的最高位是标识符的最高位。
//
// 位编号约定：Bit(0) 是最低位，Bit(IDBits-1) 是最高位。
type ID [IDBytes]byte

// ZeroID 全零标识符
var ZeroID ID

// ParseID 从十六进制字符串解析标识符
//
// 空字符串解析为零标识符；否则必须恰好是 IDHexLen 个十六进制字符（大小写均可）。
func ParseID(s string) (ID, error) {
	var id ID
	if s == "" {
		return id, nil
	}
	if len(s) != IDHexLen {
		return id, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidID, IDHexLen, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

// MustParseID 解析标识符，失败时 panic
//
// 仅用于常量和测试。
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IDFromBytes 从字节切片创建标识符
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDBytes {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidID, IDBytes, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// HashID 对任意内容计算标识符
//
// 使用 BLAKE3 输出 IDBytes 字节摘要，总是成功。
func HashID(data []byte) ID {
	h := blake3.New(IDBytes, nil)
	_, _ = h.Write(data)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// RandomID 从给定随机源生成标识符
func RandomID(r io.Reader) (ID, error) {
	var id ID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return ZeroID, fmt.Errorf("read random id: %w", err)
	}
	return id, nil
}

// NewRandomID 使用 crypto/rand 生成标识符
func NewRandomID() ID {
	id, err := RandomID(rand.Reader)
	if err != nil {
		panic(err)
	}
	return id
}

// String 返回定宽小写十六进制表示
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString 返回日志用的短表示
func (id ID) ShortString() string {
	return id.String()[:8]
}

// Bytes 返回标识符的字节切片副本
func (id ID) Bytes() []byte {
	b := make([]byte, IDBytes)
	copy(b, id[:])
	return b
}

// IsZero 检查是否为零标识符
func (id ID) IsZero() bool {
	return id == ZeroID
}

// Equal 比较两个标识符是否相等
func (id ID) Equal(other ID) bool {
	return id == other
}

// Compare 按无符号大端序比较
//
// 返回 -1、0 或 1。
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less 按无符号大端序判断 id < other
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// Bit 返回第 i 位（0 为最低位）
func (id ID) Bit(i int) bool {
	byteIdx, mask := bitPos(i)
	return id[byteIdx]&mask != 0
}

// SetBit 返回第 i 位被设为 v 的副本
func (id ID) SetBit(i int, v bool) ID {
	byteIdx, mask := bitPos(i)
	if v {
		id[byteIdx] |= mask
	} else {
		id[byteIdx] &^= mask
	}
	return id
}

// FlipBit 返回第 i 位取反后的副本
func (id ID) FlipBit(i int) ID {
	byteIdx, mask := bitPos(i)
	id[byteIdx] ^= mask
	return id
}

// HighestBit 返回最高置位的位号，零标识符返回 -1
func (id ID) HighestBit() int {
	for i, b := range id {
		if b != 0 {
			return (IDBytes-1-i)*8 + bits.Len8(b) - 1
		}
	}
	return -1
}

func bitPos(i int) (int, byte) {
	if i < 0 || i >= IDBits {
		panic(fmt.Sprintf("types: bit index %d out of range [0, %d)", i, IDBits))
	}
	return IDBytes - 1 - i/8, byte(1) << (uint(i) % 8)
}

// ============================================================================
//                              XOR 距离
// ============================================================================

// Distance 计算 XOR 距离
//
// 结果与标识符同宽，distance(a, a) 为零，且满足对称性。
func Distance(a, b ID) ID {
	var d ID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// CompareDistance 比较 a、b 到 target 的距离
//
// 返回 -1 表示 a 更近，1 表示 b 更近，0 表示相等。
func CompareDistance(target, a, b ID) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da < db {
			return -1
		}
		if da > db {
			return 1
		}
	}
	return 0
}

// CloserTo 判断 a 是否比 b 更接近 target
func CloserTo(target, a, b ID) bool {
	return CompareDistance(target, a, b) < 0
}
