// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config 节点配置解析
package config

import (
	"github.com/33cn/tradenet/types"
	tml "github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// default p2p configuration
const (
	DefaultPort             = 5000
	DefaultEngine           = "kad"
	DefaultProtocolPrefix   = "/tradenet"
	DefaultReplication      = 3
	DefaultMaxConnections   = 10
	DefaultConnLifetime     = 10
	DefaultBootstrapTimeout = 30
	DefaultPeerCacheSize    = 256
	DefaultPortAttempts     = 8
	DefaultDbPath           = "datadir/addrbook"
	DefaultNetwork          = "mainnet"
	DefaultCoinCode         = "BTC"
)

// Init 从文件解析配置
func Init(path string) (*types.Config, error) {
	var cfg types.Config
	if _, err := tml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrap(err, "config.Init")
	}
	FillDefault(&cfg)
	return &cfg, nil
}

// InitString 从字符串解析配置
func InitString(s string) (*types.Config, error) {
	var cfg types.Config
	if _, err := tml.Decode(s, &cfg); err != nil {
		return nil, errors.Wrap(err, "config.InitString")
	}
	FillDefault(&cfg)
	return &cfg, nil
}

// MustInit panic on error, used by cli
func MustInit(path string) *types.Config {
	cfg, err := Init(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Default configuration used when no file is given
func Default() *types.Config {
	cfg := &types.Config{}
	FillDefault(cfg)
	return cfg
}

// FillDefault 填充未配置的字段
func FillDefault(cfg *types.Config) {
	if cfg.Title == "" {
		cfg.Title = types.AppName
	}
	if cfg.Log == nil {
		cfg.Log = &types.Log{}
	}
	if cfg.P2P == nil {
		cfg.P2P = &types.P2P{}
	}
	if cfg.Wallet == nil {
		cfg.Wallet = &types.Wallet{}
	}
	p := cfg.P2P
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Engine == "" {
		p.Engine = DefaultEngine
	}
	if p.ProtocolPrefix == "" {
		p.ProtocolPrefix = DefaultProtocolPrefix
	}
	if p.DbPath == "" {
		p.DbPath = DefaultDbPath
	}
	if p.Replication <= 0 {
		p.Replication = DefaultReplication
	}
	if p.MaxConnections <= 0 {
		p.MaxConnections = DefaultMaxConnections
	}
	if p.ConnLifetime <= 0 {
		p.ConnLifetime = DefaultConnLifetime
	}
	if p.BootstrapTimeout <= 0 {
		p.BootstrapTimeout = DefaultBootstrapTimeout
	}
	if p.PeerCacheSize <= 0 {
		p.PeerCacheSize = DefaultPeerCacheSize
	}
	if p.PortAttempts <= 0 {
		p.PortAttempts = DefaultPortAttempts
	}
	w := cfg.Wallet
	if w.Network == "" {
		w.Network = DefaultNetwork
	}
	if w.CoinCode == "" {
		w.CoinCode = DefaultCoinCode
	}
}
