package testutil

import (
	"context"
	"testing"
	"time"
)

// WaitForCondition 等待条件满足或超时
//
// 参数：
//   - t: 测试对象
//   - timeout: 超时时间
//   - interval: 检查间隔
//   - condition: 条件函数，返回 true 表示条件满足
//
// 返回：条件是否满足（超时返回 false）
func WaitForCondition(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即检查一次
	if condition() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

// WaitForConditionOrFail 等待条件满足，超时则 fail 测试
func WaitForConditionOrFail(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool, msg string) {
	t.Helper()

	if !WaitForCondition(t, timeout, interval, condition) {
		t.Fatalf("等待超时: %s", msg)
	}
}

// Eventually 在指定时间内重试条件检查
//
// 使用默认间隔 20ms。
//
// 示例:
//
//	testutil.Eventually(t, 10*time.Second, func() bool {
//	    return node.PeerCount() > 0
//	}, "应该加入网络")
func Eventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	WaitForConditionOrFail(t, timeout, 20*time.Millisecond, condition, msg)
}

// EventuallyOrFail 在指定时间内重试条件检查，失败则 fail 测试（默认 1 秒超时）
//
// Deprecated: 使用 Eventually(t, timeout, condition, msg) 替代
func EventuallyOrFail(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	WaitForConditionOrFail(t, time.Second, 100*time.Millisecond, condition, msg)
}
