package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-kaddht"
	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
)

var logger = log.Logger("kaddht/cmd")

// globalFlags 所有子命令共享的参数
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（KADDHT_* 前缀）
//  3. 配置文件
//  4. 默认值
type globalFlags struct {
	configFile string
	listen     []string
	seeds      []string
	id         string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "kaddht",
		Short: "Kademlia DHT node",
		Long: `kaddht runs a Kademlia distributed hash table node over UDP.

Start a bootstrap node:
	$ kaddht run --listen 0.0.0.0:27980

Store and fetch a value through it:
	$ kaddht save --seed 203.0.113.7:27980 greeting hello
	$ kaddht load --seed 203.0.113.7:27980 greeting`,
		Version:       kaddht.VersionInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "配置文件路径（JSON）")
	pf.StringSliceVarP(&flags.listen, "listen", "l", nil, "UDP 监听地址，可重复")
	pf.StringSliceVarP(&flags.seeds, "seed", "s", nil, "种子节点地址，可重复")
	pf.StringVar(&flags.id, "id", "", "节点标识符（40 位十六进制）")
	pf.StringVar(&flags.logLevel, "log-level", "", "日志级别: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(flags),
		newSaveCmd(flags),
		newLoadCmd(flags),
		newIDCmd(),
	)
	return root
}

// loadConfig 按优先级合并配置
//
// ephemeral 为 true 时，未显式指定监听地址则只监听随机端口，
// 用于 save/load 这类短命令。
func loadConfig(cmd *cobra.Command, flags *globalFlags, ephemeral bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	// ═══════════════════════════════════════════════════════════════════
	// 1. 配置文件
	// ═══════════════════════════════════════════════════════════════════
	if flags.configFile != "" {
		cfg, err = config.LoadFile(flags.configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		cfg = config.NewConfig()
		if ephemeral {
			cfg.Transport = cfg.Transport.WithListenAddrs("0.0.0.0:0")
		}
	}

	// ═══════════════════════════════════════════════════════════════════
	// 2. 环境变量
	// ═══════════════════════════════════════════════════════════════════
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("应用环境变量失败: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════
	// 3. 命令行参数
	// ═══════════════════════════════════════════════════════════════════
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Transport = cfg.Transport.WithListenAddrs(flags.listen...)
	}
	if f.Changed("seed") {
		cfg.DHT = cfg.DHT.WithBootstrapPeers(flags.seeds...)
	}
	if f.Changed("id") {
		cfg.Identity = cfg.Identity.WithID(flags.id)
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}

	return config.ValidateAndFix(cfg)
}

// setupLogging 按日志配置初始化全局 logger
//
// 返回的关闭函数用于关闭日志文件。
func setupLogging(c config.LogConfig) (func(), error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := log.Options{Level: level, Format: log.Format(c.Format)}

	closer := func() {}
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		opts.Output = f
		closer = func() { _ = f.Close() }
	}

	log.Setup(opts)
	return closer, nil
}
