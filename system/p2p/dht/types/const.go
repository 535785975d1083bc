// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package types p2p 插件内部公用类型
package types

import (
	"time"

	"github.com/libp2p/go-libp2p/core/protocol"
)

const (
	// Version P2P client version
	Version = "1.0.0"
	// DHTTypeName p2p插件名称
	DHTTypeName = "dht"
	// EngineKad 基于libp2p kad-dht
	EngineKad = "kad"
	// EngineMemnet 进程内网络, 用于测试和单机演示
	EngineMemnet = "memnet"

	// MasterPeerPort 种子节点的固定端口
	MasterPeerPort = 5000
	// MinDynamicPort 动态端口区间
	MinDynamicPort = 49152
	// MaxPort 动态端口区间
	MaxPort = 65535

	// MaxMessageSize 单条流消息的上限
	MaxMessageSize = 4 * 1024 * 1024
)

// stream protocols, prefixed with P2P.ProtocolPrefix
const (
	StoreProtocol  protocol.ID = "/store/1.0.0"
	DirectProtocol protocol.ID = "/direct/1.0.0"
	// AddrProtocol 返回对端观察到的连接地址
	AddrProtocol protocol.ID = "/addr/1.0.0"
)

var (
	// DefaultConnLifetime direct connection lifetime
	DefaultConnLifetime = 10 * time.Second
	// DefaultBootstrapTimeout bootstrap + discover timeout
	DefaultBootstrapTimeout = 30 * time.Second
)

// WithPrefix protocol id inside a network
func WithPrefix(prefix string, id protocol.ID) protocol.ID {
	return protocol.ID(prefix) + id
}
