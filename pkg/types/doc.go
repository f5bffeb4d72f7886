// Package types 定义 go-kaddht 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，可以自由复制。
//
// # 文件组织
//
//   - ids.go      - ID 标识符、XOR 距离、位操作
//   - endpoint.go - Endpoint 网络端点、Peer 节点
//   - errors.go   - 公共错误定义
//
// # 标识符
//
// ID 是 160 位定长值，按无符号大端序全序比较，文本形式为定宽小写十六进制。
// 可以从十六进制字符串、任意内容的 BLAKE3 摘要或随机源构造：
//
//	id, err := types.ParseID("5fbc...")
//	key := types.HashID([]byte("hello"))
//	self, err := types.RandomID(rand.Reader)
//
// 两个标识符的距离为按位异或，距离的比较即标识符的比较。
package types
