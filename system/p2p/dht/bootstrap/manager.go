// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootstrap 节点身份, 端口绑定, 加入网络以及发布自身地址
package bootstrap

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
)

var blog = log.New("module", "p2p.bootstrap")

// State of the manager
type State int32

// states, Failed and Stopped are terminal
const (
	Uninitialized State = iota
	Binding
	Bootstrapping
	Discovering
	Publishing
	Ready
	Failed
	Stopped
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Binding:       "binding",
	Bootstrapping: "bootstrapping",
	Discovering:   "discovering",
	Publishing:    "publishing",
	Ready:         "ready",
	Failed:        "failed",
	Stopped:       "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) terminal() bool {
	return s == Failed || s == Stopped
}

// Binder binds an engine for priv on port, types.ErrPortInUse lets the manager try the next port
type Binder interface {
	Bind(ctx context.Context, priv crypto.PrivKey, port int) (protocol.Engine, error)
}

// Config manager parameters
type Config struct {
	Seeds []string
	// IsSeed 种子节点不需要 bootstrap 和 discover
	IsSeed           bool
	PortAttempts     int
	BootstrapTimeout time.Duration
	ConnLifetime     time.Duration
}

// DefaultPortAttempts preferred port plus derived ports
const DefaultPortAttempts = 8

// Manager runs the startup sequence of a node
type Manager struct {
	cfg    Config
	binder Binder
	book   *AddrBook
	q      *queue.Queue
	bus    *event.Bus

	mu       sync.Mutex
	state    State
	identity *Identity
	engine   protocol.Engine
	facade   *protocol.Facade
	self     types.PeerAddress
}

// NewManager manager in Uninitialized state
func NewManager(cfg Config, binder Binder, book *AddrBook, q *queue.Queue, bus *event.Bus) *Manager {
	if cfg.PortAttempts <= 0 {
		cfg.PortAttempts = DefaultPortAttempts
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = dhttypes.DefaultBootstrapTimeout
	}
	return &Manager{cfg: cfg, binder: binder, book: book, q: q, bus: bus}
}

// State current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Facade available once bound
func (m *Manager) Facade() *protocol.Facade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facade
}

// Identity available once bound
func (m *Manager) Identity() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Self published address, valid in Ready
func (m *Manager) Self() types.PeerAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// Start bind, join the network and publish our address. The whole sequence is bounded by the bootstrap timeout.
func (m *Manager) Start(preferredPort int) *queue.Future[types.PeerAddress] {
	m.mu.Lock()
	if m.state != Uninitialized {
		m.mu.Unlock()
		return queue.Failed[types.PeerAddress](m.q, types.ErrAlreadyStarted)
	}
	m.state = Binding
	m.mu.Unlock()
	m.notify(Uninitialized, Binding, nil)
	return queue.Go(m.q, func() (types.PeerAddress, error) {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BootstrapTimeout)
		defer cancel()
		self, err := m.start(ctx, preferredPort)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				err = types.ErrTimeout
			}
			m.fail(err)
			return types.PeerAddress{}, err
		}
		blog.Info("Start", "pid", self.ID, "addrs", self.Addrs)
		return self, nil
	})
}

func (m *Manager) start(ctx context.Context, preferredPort int) (types.PeerAddress, error) {
	id, err := m.book.Identity()
	if err != nil {
		return types.PeerAddress{}, err
	}
	engine, err := m.bind(ctx, id, preferredPort)
	if err != nil {
		return types.PeerAddress{}, err
	}
	facade := protocol.NewFacade(engine, m.q, m.cfg.ConnLifetime)
	m.mu.Lock()
	if m.state.terminal() {
		m.mu.Unlock()
		facade.Close()
		_ = engine.Close()
		return types.PeerAddress{}, types.ErrIsClosed
	}
	m.identity, m.engine, m.facade = id, engine, facade
	m.mu.Unlock()

	self := engine.Self()
	if !m.cfg.IsSeed {
		m.setState(Bootstrapping, nil)
		seeds := m.cfg.Seeds
		if len(seeds) == 0 {
			seeds = m.book.Addrs()
		}
		seed, err := engine.Bootstrap(ctx, seeds)
		if err != nil {
			return types.PeerAddress{}, err
		}
		m.setState(Discovering, nil)
		if self, err = engine.Discover(ctx, seed); err != nil {
			return types.PeerAddress{}, err
		}
		m.saveSeed(seed)
	}

	m.setState(Publishing, nil)
	data, err := json.Marshal(&self)
	if err != nil {
		return types.PeerAddress{}, err
	}
	rec := &types.Record{Payload: data, Protected: true, OwnerKey: id.PubKey}
	if _, err = facade.Put(key.PeerAddress(id.PubKeyHex()), key.Zero, rec).Await(ctx); err != nil {
		return types.PeerAddress{}, err
	}
	m.mu.Lock()
	m.self = self
	m.mu.Unlock()
	m.setState(Ready, nil)
	return self, nil
}

// bind preferred port first, then ports derived from the identity in the dynamic range
func (m *Manager) bind(ctx context.Context, id *Identity, preferredPort int) (protocol.Engine, error) {
	for _, port := range candidatePorts(preferredPort, id.PubKey, m.cfg.PortAttempts) {
		engine, err := m.binder.Bind(ctx, id.PrivKey, port)
		if err == nil {
			return engine, nil
		}
		if err != types.ErrPortInUse {
			return nil, err
		}
		blog.Debug("bind", "port", port, "err", err)
	}
	return nil, types.ErrPortInUse
}

func candidatePorts(preferred int, seed []byte, attempts int) []int {
	ports := []int{preferred}
	span := dhttypes.MaxPort - dhttypes.MinDynamicPort + 1
	h := key.HashBytes(seed)
	base := int(binary.BigEndian.Uint32(h[:4]) % uint32(span))
	for i := 0; len(ports) < attempts && i < span; i++ {
		port := dhttypes.MinDynamicPort + (base+i)%span
		if port != preferred {
			ports = append(ports, port)
		}
	}
	return ports
}

func (m *Manager) saveSeed(seed types.PeerAddress) {
	addrs := make([]string, 0, len(seed.Addrs))
	for _, a := range seed.Addrs {
		addrs = append(addrs, a+"/p2p/"+seed.ID)
	}
	if len(addrs) == 0 {
		return
	}
	if err := m.book.SaveAddrs(addrs); err != nil {
		blog.Error("saveSeed", "err", err)
	}
}

func (m *Manager) setState(to State, err error) {
	m.mu.Lock()
	from := m.state
	if from.terminal() {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()
	m.notify(from, to, err)
}

func (m *Manager) notify(from, to State, err error) {
	if err != nil {
		blog.Error("state", "from", from, "to", to, "err", err)
	} else {
		blog.Debug("state", "from", from, "to", to)
	}
	if m.bus != nil {
		m.bus.Publish(&event.BootstrapStateChanged{From: from.String(), To: to.String(), Err: err})
	}
}

// fail release what was created and enter Failed
func (m *Manager) fail(err error) {
	m.setState(Failed, err)
	m.release()
}

func (m *Manager) release() {
	m.mu.Lock()
	facade, engine := m.facade, m.engine
	m.mu.Unlock()
	if facade != nil {
		facade.Close()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			blog.Error("release", "err", err)
		}
	}
}

// Shutdown close the engine, no-op when not started or already stopped
func (m *Manager) Shutdown() {
	m.mu.Lock()
	from := m.state
	if from == Uninitialized || from == Stopped {
		m.mu.Unlock()
		return
	}
	m.state = Stopped
	m.mu.Unlock()
	m.notify(from, Stopped, nil)
	m.release()
}
