// Package interfaces 定义 go-kaddht 的公共接口
//
//   - transport.go - 数据报传输接口（Send / Receive / Close）
//
// DHT 引擎只通过这些接口消费外部能力，生产实现（UDP）与测试实现（内存网络）
// 都满足同一接口。
package interfaces
