package message

import "errors"

// 解码错误
//
// 任何解码错误都意味着数据报被整体丢弃，不做部分处理。
var (
	// ErrTruncatedHeader 头部不完整（版本或类型字节缺失）
	ErrTruncatedHeader = errors.New("dht: truncated header")

	// ErrUnknownProtocolVersion 不支持的协议版本
	ErrUnknownProtocolVersion = errors.New("dht: unknown protocol version")

	// ErrUnknownMessageType 未知消息类型
	ErrUnknownMessageType = errors.New("dht: unknown message type")

	// ErrTruncatedID 标识符不完整
	ErrTruncatedID = errors.New("dht: truncated id")

	// ErrTruncatedEndpoint 端点不完整（地址族或端口缺失）
	ErrTruncatedEndpoint = errors.New("dht: truncated endpoint")

	// ErrTruncatedAddress 地址字节不完整
	ErrTruncatedAddress = errors.New("dht: truncated address")

	// ErrTruncatedSize 长度或计数字段不完整
	ErrTruncatedSize = errors.New("dht: truncated size")

	// ErrCorruptedBody 消息体损坏（长度不符、多余字节、非法地址族等）
	ErrCorruptedBody = errors.New("dht: corrupted body")
)
