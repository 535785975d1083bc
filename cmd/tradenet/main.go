// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tradenet 交易网络节点
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/33cn/tradenet/common/config"
	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/metrics"
	"github.com/33cn/tradenet/system/p2p/dht"
	"github.com/33cn/tradenet/types"
	"github.com/33cn/tradenet/wallet"
	"github.com/spf13/cobra"
)

var tlog = log.New("module", "main")

var rootCmd = &cobra.Command{
	Use:   types.AppName,
	Short: types.AppName + " peer to peer trade network node",
}

func init() {
	rootCmd.PersistentFlags().StringP("conf", "f", "", "config file, defaults are used when empty")
	rootCmd.AddCommand(nodeCmd(), walletCmd(), versionCmd())
}

func loadConfig(cmd *cobra.Command) (*types.Config, error) {
	path, _ := cmd.Flags().GetString("conf")
	if path == "" {
		return config.Default(), nil
	}
	return config.Init(path)
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a trade network node",
		RunE:  runNode,
	}
	cmd.Flags().Int32P("port", "p", 0, "preferred listen port, overrides the config")
	cmd.Flags().Bool("seed", false, "run as seed node")
	cmd.Flags().Duration("metrics", time.Minute, "metrics log interval, 0 disables")
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt32("port"); port > 0 {
		cfg.P2P.Port = port
	}
	if seed, _ := cmd.Flags().GetBool("seed"); seed {
		cfg.P2P.IsSeed = true
	}
	log.SetFileLog(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interval, _ := cmd.Flags().GetDuration("metrics")
	go metrics.StartLog(ctx, interval)

	node, err := dht.New(cfg.P2P, nil)
	if err != nil {
		return err
	}
	defer node.Close()
	self, err := node.Start().Await(ctx)
	if err != nil {
		tlog.Error("start node", "err", err)
		return err
	}
	tlog.Info("node ready", "pid", self.ID, "addrs", self.Addrs, "pubkey", node.Identity().PubKeyHex())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt
	tlog.Info("shutting down")
	return nil
}

func walletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Print wallet location and total received",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return wallet.PrintInfo(os.Stdout, cfg.Wallet, wallet.NewFileService(cfg.Wallet.CoinCode))
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(types.Version)
		},
	}
}

func main() {
	log.SetLogLevel("eror")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
