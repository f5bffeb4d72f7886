// Package types 定义 go-kaddht 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrInvalidID 无效的标识符（长度或字符非法）
	ErrInvalidID = errors.New("invalid id")
)

// ============================================================================
//                              Endpoint 相关错误
// ============================================================================

var (
	// ErrInvalidEndpoint 无效的网络端点
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)
