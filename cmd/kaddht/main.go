// Package main 提供 kaddht 命令行入口
//
// 子命令：
//   - run:  启动一个长期运行的 DHT 节点
//   - save: 加入网络并保存一个值
//   - load: 加入网络并读取一个或多个值
//   - id:   计算 key 的标识符或生成随机节点标识符
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
