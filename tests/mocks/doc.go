// Package mocks 提供统一的测试 Mock 实现
//
// # 传输 Mock
//
//   - MockTransport: 模拟 interfaces.Transport，记录发送的数据报，
//     通过 Deliver 注入入站数据报
//
// # 使用示例
//
//	tr := mocks.NewMockTransport()
//	tr.SendFunc = func(data []byte, to types.Endpoint) error {
//	    return interfaces.ErrHostUnreachable
//	}
package mocks
