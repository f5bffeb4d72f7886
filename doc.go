// Package kaddht 提供基于 UDP 的 Kademlia 分布式哈希表节点
//
// 节点使用 160 位标识符和 XOR 距离组织路由表，通过 PING、STORE、
// FIND_PEER、FIND_VALUE 四种请求在网络中保存和查找键值。
//
// # 快速开始
//
//	import "github.com/dep2p/go-kaddht"
//
//	// 1. 创建并启动节点
//	node, err := kaddht.Start(ctx,
//	    kaddht.WithListenAddrs("0.0.0.0:27980"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 2. 通过已知节点加入网络
//	err = node.Join(ctx, "203.0.113.7:27980")
//
//	// 3. 保存和读取
//	err = node.Save(ctx, []byte("key"), []byte("value"))
//	value, err := node.Load(ctx, []byte("key"))
//
// # 文件组织
//
//   - node.go    - Node 门面与生命周期
//   - options.go - 用户配置选项
//   - fx.go      - Fx 模块装配
//   - errors.go  - 公共错误
//
// 内部实现位于 internal/discovery/dht（引擎、路由表、查找）和
// internal/core/transport（UDP 与进程内传输）。
package kaddht
