// Package transport 组装数据报传输层
//
// DHT 只依赖 interfaces.Transport：按端点收发无连接、不可靠的数据报。
//
// # 实现
//
//   - udp    - 真实网络，IPv4 与 IPv6 各一个 socket
//   - memory - 进程内网络，用于测试和模拟
//
// # 使用示例
//
//	t, err := udp.Listen([]types.Endpoint{ep})
//	err = t.Send(data, to)
//	data, from, err := t.Receive()
//
// Module 从统一配置创建 UDP 传输并在 fx 停止时关闭。
package transport
