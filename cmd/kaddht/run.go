package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-kaddht"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a long-lived DHT node until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags, false)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("启动 kaddht 节点", "version", kaddht.Version, "commit", kaddht.GitCommit)
			node, err := kaddht.Start(ctx, kaddht.WithConfig(cfg))
			if err != nil {
				return fmt.Errorf("启动失败: %w", err)
			}
			defer func() { _ = node.Close() }()

			printNodeInfo(cmd, node)
			fmt.Fprintln(cmd.OutOrStdout(), "节点已启动，按 Ctrl+C 退出")

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "\n正在关闭节点...")
			return node.Stop(context.Background())
		},
	}
}

func printNodeInfo(cmd *cobra.Command, node *kaddht.Node) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "节点 ID: %s\n", node.ID())
	for _, ep := range node.LocalEndpoints() {
		fmt.Fprintf(out, "监听地址: %s\n", ep)
	}
}
