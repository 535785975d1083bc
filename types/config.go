// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "time"

// Config 节点配置, 由toml文件解析
type Config struct {
	Title  string  `json:"title,omitempty"`
	Log    *Log    `json:"log,omitempty"`
	P2P    *P2P    `json:"p2p,omitempty"`
	Wallet *Wallet `json:"wallet,omitempty"`
}

// Log 日志配置
type Log struct {
	// 文件日志级别
	Loglevel string `json:"loglevel,omitempty"`
	// 控制台日志级别
	LogConsoleLevel string `json:"logConsoleLevel,omitempty"`
	// 日志文件名, 为空时只输出到控制台
	LogFile string `json:"logFile,omitempty"`
	// 单个日志文件的最大值(单位：兆)
	MaxFileSize uint32 `json:"maxFileSize,omitempty"`
	// 最多保存的历史日志文件个数
	MaxBackups uint32 `json:"maxBackups,omitempty"`
	// 最多保存的历史日志消息(单位：天)
	MaxAge uint32 `json:"maxAge,omitempty"`
	// 日志文件名是否使用本地时间
	LocalTime bool `json:"localTime,omitempty"`
	// 历史日志文件是否压缩
	Compress bool `json:"compress,omitempty"`
	// 是否打印调用源文件和行号
	CallerFile bool `json:"callerFile,omitempty"`
	// 是否打印调用方法
	CallerFunction bool `json:"callerFunction,omitempty"`
	// libp2p内部模块日志级别
	Libp2pLevel string `json:"libp2pLevel,omitempty"`
}

// P2P p2p配置
type P2P struct {
	// addrbook 和 record 数据库路径
	DbPath string `json:"dbPath,omitempty"`
	// 节点启动时优先使用的端口, 被占用时从动态端口区间中选取
	Port int32 `json:"port,omitempty"`
	// 引擎类型 kad / memnet
	Engine string `json:"engine,omitempty"`
	// 种子节点 multiaddr, 格式 /ip4/127.0.0.1/tcp/4500/p2p/<peer id>
	Seeds []string `json:"seeds,omitempty"`
	// 是否为种子节点, 种子节点无需bootstrap
	IsSeed bool `json:"isSeed,omitempty"`
	// dht 协议前缀, 不同的前缀进入不同的网络
	ProtocolPrefix string `json:"protocolPrefix,omitempty"`
	// 每条记录保存的副本数
	Replication int32 `json:"replication,omitempty"`
	// 最大连接数
	MaxConnections int32 `json:"maxConnections,omitempty"`
	// 单次直连的生命周期(单位：秒)
	ConnLifetime int32 `json:"connLifetime,omitempty"`
	// bootstrap 与 discover 的超时(单位：秒)
	BootstrapTimeout int32 `json:"bootstrapTimeout,omitempty"`
	// 节点地址缓存大小
	PeerCacheSize int32 `json:"peerCacheSize,omitempty"`
	// 绑定端口失败后尝试的动态端口个数
	PortAttempts int32 `json:"portAttempts,omitempty"`
}

// Wallet 钱包配置
type Wallet struct {
	WalletDir string `json:"walletDir,omitempty"`
	// 网络名, 例如 mainnet / testnet / regtest
	Network string `json:"network,omitempty"`
	// 币种代码
	CoinCode string `json:"coinCode,omitempty"`
}

// ConnLifetimeDuration connection lifetime as duration
func (p *P2P) ConnLifetimeDuration() time.Duration {
	return time.Duration(p.ConnLifetime) * time.Second
}

// BootstrapTimeoutDuration bootstrap timeout as duration
func (p *P2P) BootstrapTimeoutDuration() time.Duration {
	return time.Duration(p.BootstrapTimeout) * time.Second
}
