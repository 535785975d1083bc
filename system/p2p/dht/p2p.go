// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dht 交易网络节点, 组装引擎, 回调队列以及各个协议模块
package dht

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/bootstrap"
	"github.com/33cn/tradenet/system/p2p/dht/engine/kad"
	"github.com/33cn/tradenet/system/p2p/dht/engine/memnet"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/dispatch"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/freshness"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/messenger"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/registry"
	p2pty "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
)

var plog = log.New("module", p2pty.DHTTypeName)

// P2P trade network node
type P2P struct {
	cfg        *types.P2P
	q          *queue.Queue
	bus        *event.Bus
	book       *bootstrap.AddrBook
	manager    *bootstrap.Manager
	dispatcher *dispatch.Dispatcher

	mu          sync.RWMutex
	tracker     *freshness.Tracker
	offers      *registry.OfferBook
	arbitrators *registry.Arbitrators
	reputation  *registry.Reputation
	messenger   *messenger.Messenger
	closed      int32
}

// New node from config, network is used by the memnet engine and may be nil
func New(cfg *types.P2P, network *memnet.Network) (*P2P, error) {
	if cfg == nil {
		return nil, types.ErrInvalidParam
	}
	var binder bootstrap.Binder
	switch cfg.Engine {
	case p2pty.EngineKad, "":
		binder = kad.NewBinder(kad.Config{
			ProtocolPrefix: cfg.ProtocolPrefix,
			Replication:    int(cfg.Replication),
			MaxConnections: int(cfg.MaxConnections),
			DbPath:         cfg.DbPath,
		})
	case p2pty.EngineMemnet:
		if network == nil {
			network = memnet.NewNetwork()
		}
		binder = network
	default:
		return nil, errors.Wrap(types.ErrInvalidParam, "unknown engine "+cfg.Engine)
	}

	bookPath := ""
	if cfg.DbPath != "" {
		bookPath = filepath.Join(cfg.DbPath, p2pty.DHTTypeName)
	}
	book, err := bootstrap.NewAddrBook(bookPath)
	if err != nil {
		return nil, err
	}
	q := queue.New(p2pty.DHTTypeName)
	bus := event.NewBus(q)
	p := &P2P{
		cfg:        cfg,
		q:          q,
		bus:        bus,
		book:       book,
		dispatcher: dispatch.New(bus),
	}
	p.manager = bootstrap.NewManager(bootstrap.Config{
		Seeds:            cfg.Seeds,
		IsSeed:           cfg.IsSeed,
		PortAttempts:     int(cfg.PortAttempts),
		BootstrapTimeout: cfg.BootstrapTimeoutDuration(),
		ConnLifetime:     cfg.ConnLifetimeDuration(),
	}, binder, book, q, bus)
	return p, nil
}

// Start bootstrap the node, the registries and the messenger are usable once the future resolves
func (p *P2P) Start() *queue.Future[types.PeerAddress] {
	if atomic.LoadInt32(&p.closed) == 1 {
		return queue.Failed[types.PeerAddress](p.q, types.ErrIsClosed)
	}
	return queue.Then(p.manager.Start(int(p.cfg.Port)), func(self types.PeerAddress) *queue.Future[types.PeerAddress] {
		if err := p.wire(p.manager.Facade()); err != nil {
			return queue.Failed[types.PeerAddress](p.q, err)
		}
		plog.Info("Start", "pid", self.ID, "addrs", self.Addrs)
		return queue.Succeeded(p.q, self)
	})
}

// wire components that depend on the bound engine, runs on the queue
func (p *P2P) wire(facade *protocol.Facade) error {
	if facade == nil {
		return types.ErrNotStarted
	}
	m, err := messenger.New(facade, p.bus, int(p.cfg.PeerCacheSize))
	if err != nil {
		return err
	}
	tracker := freshness.New(facade, p.bus)
	env := &registry.Env{Facade: facade, Tracker: tracker, Bus: p.bus}
	p.mu.Lock()
	p.tracker = tracker
	p.offers = registry.NewOfferBook(env)
	p.arbitrators = registry.NewArbitrators(env)
	p.reputation = registry.NewReputation(env)
	p.messenger = m
	p.mu.Unlock()
	m.Serve(p.dispatcher)
	return nil
}

// Queue callback context of the node
func (p *P2P) Queue() *queue.Queue {
	return p.q
}

// Bus event bus
func (p *P2P) Bus() *event.Bus {
	return p.bus
}

// Dispatcher trade message router
func (p *P2P) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

// State bootstrap state
func (p *P2P) State() bootstrap.State {
	return p.manager.State()
}

// Identity local key pair, nil before Start
func (p *P2P) Identity() *bootstrap.Identity {
	return p.manager.Identity()
}

// Self published address
func (p *P2P) Self() types.PeerAddress {
	return p.manager.Self()
}

// Tracker dirty flags, nil before Start resolved
func (p *P2P) Tracker() *freshness.Tracker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracker
}

// Offers offer book, nil before Start resolved
func (p *P2P) Offers() *registry.OfferBook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offers
}

// Arbitrators arbitrator directory, nil before Start resolved
func (p *P2P) Arbitrators() *registry.Arbitrators {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.arbitrators
}

// Reputation reputation ledger, nil before Start resolved
func (p *P2P) Reputation() *registry.Reputation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reputation
}

// Messenger direct messages, nil before Start resolved
func (p *P2P) Messenger() *messenger.Messenger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.messenger
}

// Close shutdown the node, pending futures fail
func (p *P2P) Close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}
	plog.Info("p2p closing")
	p.manager.Shutdown()
	p.q.Close()
	if err := p.book.Close(); err != nil {
		plog.Error("Close", "addrbook", err)
	}
	plog.Info("p2p closed")
}
