// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memnet 进程内的 dht 网络
//
// 所有节点共享同一个 RecordStore, 端口和节点 id 在 Network 内唯一,
// 直连消息直接调用目标节点的 handler. 用于单机演示以及多节点测试.
package memnet

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/store"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

var mlog = log.New("module", "p2p.memnet")

// Network in-process network, the zero value is not usable
type Network struct {
	mu    sync.RWMutex
	store *store.RecordStore
	nodes map[peer.ID]*Node
	ports map[int]*Node
}

// NewNetwork empty network
func NewNetwork() *Network {
	return &Network{
		store: store.NewRecordStore(dssync.MutexWrap(ds.NewMapDatastore())),
		nodes: make(map[peer.ID]*Node),
		ports: make(map[int]*Node),
	}
}

// Bind create a node listening on port
func (n *Network) Bind(ctx context.Context, priv crypto.PrivKey, port int) (protocol.Engine, error) {
	if priv == nil || port <= 0 || port > dhttypes.MaxPort {
		return nil, types.ErrInvalidParam
	}
	if err := ctx.Err(); err != nil {
		return nil, types.ErrTimeout
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.ports[port]; ok {
		return nil, types.ErrPortInUse
	}
	if _, ok := n.nodes[id]; ok {
		return nil, types.ErrAlreadyStarted
	}
	node := &Node{
		net:  n,
		id:   id,
		pub:  pub,
		port: port,
		addr: types.PeerAddress{
			ID:     id.String(),
			Addrs:  []string{fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", port)},
			PubKey: pub,
		},
	}
	n.nodes[id] = node
	n.ports[port] = node
	mlog.Debug("Bind", "pid", id, "port", port)
	return node, nil
}

// Size bound nodes
func (n *Network) Size() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

// Store shared record store
func (n *Network) Store() *store.RecordStore {
	return n.store
}

func (n *Network) node(id string) *Node {
	pid, err := peer.Decode(id)
	if err != nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodes[pid]
}

func (n *Network) nodeOnPort(port int) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ports[port]
}

// resolve a seed given as multiaddr, with or without /p2p/<id>, or as a bare peer id
func (n *Network) resolve(seed string) *Node {
	addr, err := ma.NewMultiaddr(seed)
	if err != nil {
		return n.node(seed)
	}
	if id, err := addr.ValueForProtocol(ma.P_P2P); err == nil {
		return n.node(id)
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil
	}
	return n.nodeOnPort(p)
}

func (n *Network) unbind(node *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodes[node.id] == node {
		delete(n.nodes, node.id)
	}
	if n.ports[node.port] == node {
		delete(n.ports, node.port)
	}
}
