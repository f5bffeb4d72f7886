package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-kaddht"
)

// clientTimeout save/load 命令的整体超时
const clientTimeout = 30 * time.Second

func newSaveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save <key> <value>",
		Short: "Store a value in the DHT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, node *kaddht.Node) error {
				if err := node.Save(ctx, []byte(args[0]), []byte(args[1])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "已保存 %q\n", args[0])
				return nil
			})
		},
	}
}

func newLoadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load <key>...",
		Short: "Fetch one or more values from the DHT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, node *kaddht.Node) error {
				values := make([][]byte, len(args))
				g, gctx := errgroup.WithContext(ctx)
				for i, key := range args {
					g.Go(func() error {
						v, err := node.Load(gctx, []byte(key))
						if err != nil {
							return fmt.Errorf("%s: %w", key, err)
						}
						values[i] = v
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				for i, key := range args {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, values[i])
				}
				return nil
			})
		},
	}
}

// withClient 启动一个临时节点，加入网络后执行 fn
func withClient(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, node *kaddht.Node) error) error {
	cfg, err := loadConfig(cmd, flags, true)
	if err != nil {
		return err
	}
	if len(cfg.DHT.BootstrapPeers) == 0 {
		return errors.New("at least one seed is required (--seed or dht.bootstrap_peers)")
	}
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()

	node, err := kaddht.Start(ctx, kaddht.WithConfig(cfg), kaddht.WithAutoJoin(false))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	if err := node.Join(ctx); err != nil {
		return fmt.Errorf("加入网络失败: %w", err)
	}
	return fn(ctx, node)
}
