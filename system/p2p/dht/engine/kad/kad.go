// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kad 基于 libp2p host 和 kad-dht 路由表的 dht 引擎
//
// 记录写入本地以及距离 location 最近的 Replication 个节点, 读取时合并副本并保留时间戳最新的记录.
// 远端写入的保护规则以连接对端的公钥为准.
package kad

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/store"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	p2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
)

var klog = log.New("module", "p2p.kad")

const (
	// DefaultReplication replicas besides the local store
	DefaultReplication = 3
	// DefaultListenIP listen address of the host
	DefaultListenIP = "0.0.0.0"
)

// Config kad engine parameters
type Config struct {
	ProtocolPrefix string
	Replication    int
	MaxConnections int
	// DbPath 为空时记录只保存在内存
	DbPath   string
	ListenIP string
}

// Binder binds kad engines
type Binder struct {
	cfg Config
}

// NewBinder binder with defaults filled
func NewBinder(cfg Config) *Binder {
	if cfg.ProtocolPrefix == "" {
		cfg.ProtocolPrefix = "/" + types.AppName
	}
	if cfg.Replication <= 0 {
		cfg.Replication = DefaultReplication
	}
	if cfg.ListenIP == "" {
		cfg.ListenIP = DefaultListenIP
	}
	return &Binder{cfg: cfg}
}

// Bind start a host listening on port, 0 picks a free port
func (b *Binder) Bind(ctx context.Context, priv crypto.PrivKey, port int) (protocol.Engine, error) {
	if priv == nil || port < 0 || port > dhttypes.MaxPort {
		return nil, types.ErrInvalidParam
	}
	if ctx.Err() != nil {
		return nil, types.ErrTimeout
	}
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, err
	}
	maddr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", b.cfg.ListenIP, port))
	if err != nil {
		return nil, errors.Wrap(types.ErrInvalidParam, err.Error())
	}
	// 不复用端口, 端口被占用时返回 ErrPortInUse
	options := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrs(maddr),
		libp2p.Transport(tcp.NewTCPTransport, tcp.DisableReuseport()),
	}
	if b.cfg.MaxConnections > 0 {
		cm, err := connmgr.NewConnManager(b.cfg.MaxConnections, b.cfg.MaxConnections*2, connmgr.WithGracePeriod(time.Minute))
		if err != nil {
			return nil, err
		}
		options = append(options, libp2p.ConnectionManager(cm))
	}
	h, err := libp2p.New(options...)
	if err != nil {
		if isAddrInUse(err) {
			return nil, types.ErrPortInUse
		}
		return nil, errors.Wrap(err, "libp2p.New")
	}

	n := &Node{
		host:        h,
		pub:         pub,
		replication: b.cfg.Replication,
		storeID:     dhttypes.WithPrefix(b.cfg.ProtocolPrefix, dhttypes.StoreProtocol),
		directID:    dhttypes.WithPrefix(b.cfg.ProtocolPrefix, dhttypes.DirectProtocol),
		addrID:      dhttypes.WithPrefix(b.cfg.ProtocolPrefix, dhttypes.AddrProtocol),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.kdht, err = dht.New(n.ctx, h, dht.Mode(dht.ModeServer), dht.ProtocolPrefix(p2pprotocol.ID(b.cfg.ProtocolPrefix)))
	if err != nil {
		n.cancel()
		_ = h.Close()
		return nil, errors.Wrap(err, "dht.New")
	}
	d, err := newDatastore(b.cfg.DbPath)
	if err != nil {
		n.cancel()
		_ = n.kdht.Close()
		_ = h.Close()
		return nil, err
	}
	n.store = store.NewRecordStore(d)
	h.SetStreamHandler(n.storeID, HandlerWithClose(n.handleStore))
	h.SetStreamHandler(n.addrID, HandlerWithClose(n.handleAddr))
	klog.Info("Bind", "pid", h.ID(), "addrs", h.Addrs())
	return n, nil
}

func newDatastore(dbPath string) (ds.Batching, error) {
	if dbPath == "" {
		return dssync.MutexWrap(ds.NewMapDatastore()), nil
	}
	p, err := store.NewPersistent(filepath.Join(dbPath, store.DBName))
	if err != nil {
		return nil, errors.Wrap(err, "open record store")
	}
	return p, nil
}

func isAddrInUse(err error) bool {
	s := err.Error()
	return strings.Contains(s, "address already in use") || strings.Contains(s, "Only one usage")
}

// Node engine backed by a libp2p host
type Node struct {
	host        host.Host
	kdht        *dht.IpfsDHT
	store       *store.RecordStore
	pub         []byte
	replication int
	storeID     p2pprotocol.ID
	directID    p2pprotocol.ID
	addrID      p2pprotocol.ID

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	handler protocol.DirectHandler
	// external 通过种子节点发现的外网地址
	external ma.Multiaddr
	isClosed int32
}

var _ protocol.Engine = (*Node)(nil)

// Host underlying libp2p host
func (n *Node) Host() host.Host {
	return n.host
}

// Port bound tcp port
func (n *Node) Port() int {
	for _, addr := range n.host.Addrs() {
		if v, err := addr.ValueForProtocol(ma.P_TCP); err == nil {
			if p, err := strconv.Atoi(v); err == nil {
				return p
			}
		}
	}
	return 0
}

// Self implements protocol.Engine, the discovered external address comes first
func (n *Node) Self() types.PeerAddress {
	n.mu.RLock()
	external := n.external
	n.mu.RUnlock()
	addrs := make([]string, 0, len(n.host.Addrs())+1)
	if external != nil {
		addrs = append(addrs, external.String())
	}
	for _, addr := range n.host.Addrs() {
		if external != nil && addr.Equal(external) {
			continue
		}
		addrs = append(addrs, addr.String())
	}
	return types.PeerAddress{ID: n.host.ID().String(), Addrs: addrs, PubKey: n.pub}
}

// PubKey implements protocol.Engine
func (n *Node) PubKey() []byte {
	return n.pub
}

func (n *Node) isClose() bool {
	return atomic.LoadInt32(&n.isClosed) == 1
}

func (n *Node) check(ctx context.Context) error {
	if n.isClose() {
		return types.ErrIsClosed
	}
	if ctx.Err() != nil {
		return types.ErrTimeout
	}
	return nil
}

// Close implements protocol.Engine
func (n *Node) Close() error {
	if !atomic.CompareAndSwapInt32(&n.isClosed, 0, 1) {
		return nil
	}
	n.cancel()
	if err := n.kdht.Close(); err != nil {
		klog.Error("Close", "dht err", err)
	}
	err := n.host.Close()
	if e := n.store.Close(); e != nil {
		klog.Error("Close", "store err", e)
	}
	klog.Info("Close", "pid", n.host.ID())
	return err
}
