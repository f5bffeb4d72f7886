// Package dht 实现 Kademlia 节点引擎
//
// DHT 把各子包组合成一个可运行的节点：
//
//   - message  - 线上消息格式的编解码
//   - routing  - 按 XOR 距离组织的 K 桶路由表
//   - tracker  - 请求 token 分配、响应匹配和超时
//   - lookup   - find-peer、find-value、store-value、join、refresh 状态机
//   - store    - 本节点负责保存的键值
//
// # 消息分发
//
// Run 启动接收循环。每个头部合法的数据报都会把发送者加入路由表，
// 随后按类型处理：
//
//	PING_REQUEST       -> PING_RESPONSE
//	STORE_REQUEST      -> 写入本地值存储，不应答
//	FIND_PEER_REQUEST  -> 最近的 k 个节点
//	FIND_VALUE_REQUEST -> 值，或最近的 k 个节点
//	其他               -> 交给跟踪器匹配等待中的请求
//
// # 使用示例
//
//	d, err := dht.New(transport)
//	go d.Run(ctx)
//	err = d.Join(ctx, seed)
//	err = d.Save(ctx, []byte("key"), []byte("value"))
//	value, err := d.Load(ctx, []byte("key"))
//	d.Stop()
package dht
