// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memnet

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Node engine of one memnet peer
type Node struct {
	net      *Network
	id       peer.ID
	pub      []byte
	port     int
	addr     types.PeerAddress
	mu       sync.RWMutex
	handler  protocol.DirectHandler
	isClosed int32
}

var _ protocol.Engine = (*Node)(nil)

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

// Put implements protocol.Engine
func (n *Node) Put(ctx context.Context, loc, content key.Key, rec *types.Record) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	return n.net.store.Put(ctx, loc, content, rec, n.pub)
}

// PutDomainProtected implements protocol.Engine
func (n *Node) PutDomainProtected(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner []byte) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	return n.net.store.PutDomainProtected(ctx, loc, content, rec, domainOwner, n.pub)
}

// Get implements protocol.Engine
func (n *Node) Get(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	return n.net.store.Get(ctx, loc, content)
}

// GetAll implements protocol.Engine
func (n *Node) GetAll(ctx context.Context, loc key.Key) (map[key.Key]*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	return n.net.store.GetAll(ctx, loc)
}

// Remove implements protocol.Engine
func (n *Node) Remove(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	return n.net.store.Remove(ctx, loc, content, n.pub)
}

// DomainOwner implements protocol.Engine
func (n *Node) DomainOwner(ctx context.Context, loc key.Key) ([]byte, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	return n.net.store.DomainOwner(ctx, loc)
}

// SetDirectHandler implements protocol.Engine
func (n *Node) SetDirectHandler(h protocol.DirectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

func (n *Node) directHandler() protocol.DirectHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handler
}

type reply struct {
	data []byte
	err  error
}

// SendDirect implements protocol.Engine, the remote handler runs on its own goroutine
func (n *Node) SendDirect(ctx context.Context, to types.PeerAddress, payload []byte) ([]byte, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	target := n.net.node(to.ID)
	if target == nil || target.isClose() {
		return nil, types.ErrPeerUnreachable
	}
	h := target.directHandler()
	if h == nil {
		return nil, types.ErrPeerUnreachable
	}
	ch := make(chan reply, 1)
	data := append([]byte(nil), payload...)
	go func() {
		resp, err := h(n.addr, data)
		ch <- reply{data: resp, err: err}
	}()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, types.ErrTimeout
	}
}

// Bootstrap implements protocol.Engine, without seeds the node on the master port is used
func (n *Node) Bootstrap(ctx context.Context, seeds []string) (types.PeerAddress, error) {
	if err := n.check(ctx); err != nil {
		return types.PeerAddress{}, err
	}
	if len(seeds) == 0 {
		seed := n.net.nodeOnPort(dhttypes.MasterPeerPort)
		if seed == nil || seed == n || seed.isClose() {
			return types.PeerAddress{}, types.ErrNoSeed
		}
		return seed.addr, nil
	}
	for _, s := range seeds {
		seed := n.net.resolve(s)
		if seed == nil || seed == n || seed.isClose() {
			mlog.Debug("Bootstrap", "seed", s, "err", types.ErrPeerUnreachable)
			continue
		}
		return seed.addr, nil
	}
	return types.PeerAddress{}, types.ErrNoSeed
}

// Discover implements protocol.Engine, there is no nat in memnet
func (n *Node) Discover(ctx context.Context, seed types.PeerAddress) (types.PeerAddress, error) {
	if err := n.check(ctx); err != nil {
		return types.PeerAddress{}, err
	}
	target := n.net.node(seed.ID)
	if target == nil || target.isClose() {
		return types.PeerAddress{}, types.ErrPeerUnreachable
	}
	return n.addr, nil
}

// Self implements protocol.Engine
func (n *Node) Self() types.PeerAddress {
	return n.addr
}

// PubKey implements protocol.Engine
func (n *Node) PubKey() []byte {
	return n.pub
}

// Port bound port
func (n *Node) Port() int {
	return n.port
}

// Close implements protocol.Engine
func (n *Node) Close() error {
	if !atomic.CompareAndSwapInt32(&n.isClosed, 0, 1) {
		return nil
	}
	n.net.unbind(n)
	return nil
}
