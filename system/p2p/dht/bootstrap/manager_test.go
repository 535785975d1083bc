// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/engine/memnet"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLogLevel("error")
}

func await[T any](t *testing.T, f *queue.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

type testNode struct {
	m      *Manager
	states chan string
}

func newManager(t *testing.T, binder Binder, cfg Config) *testNode {
	book, err := NewAddrBook("")
	require.Nil(t, err)
	q := queue.New("bootstrap")
	bus := event.NewBus(q)
	states := make(chan string, 16)
	bus.Subscribe(func(ev event.Event) {
		states <- ev.(*event.BootstrapStateChanged).To
	}, event.KindBootstrapStateChanged)
	m := NewManager(cfg, binder, book, q, bus)
	t.Cleanup(func() {
		m.Shutdown()
		q.Close()
		_ = book.Close()
	})
	return &testNode{m: m, states: states}
}

func (n *testNode) drain() []string {
	var out []string
	for {
		select {
		case s := <-n.states:
			out = append(out, s)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestCandidatePorts(t *testing.T) {
	seed := []byte("pub")
	ports := candidatePorts(5000, seed, 8)
	assert.Equal(t, 8, len(ports))
	assert.Equal(t, 5000, ports[0])
	for _, p := range ports[1:] {
		assert.True(t, p >= dhttypes.MinDynamicPort && p <= dhttypes.MaxPort)
	}
	assert.Equal(t, ports, candidatePorts(5000, seed, 8))
	assert.Equal(t, []int{5000}, candidatePorts(5000, seed, 1))
}

func TestAddrBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addrbook")
	book, err := NewAddrBook(path)
	require.Nil(t, err)
	id, err := book.Identity()
	require.Nil(t, err)
	again, err := book.Identity()
	require.Nil(t, err)
	assert.Equal(t, id, again)
	assert.Nil(t, book.Addrs())
	require.Nil(t, book.SaveAddrs([]string{"/ip4/127.0.0.1/tcp/5000"}))
	require.Nil(t, book.Close())

	book, err = NewAddrBook(path)
	require.Nil(t, err)
	defer book.Close()
	reopened, err := book.Identity()
	require.Nil(t, err)
	assert.Equal(t, id.PubKey, reopened.PubKey)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/5000"}, book.Addrs())

	priv, pub, err := GenPrivPubkey()
	require.Nil(t, err)
	k, err := crypto.UnmarshalPrivateKey(priv)
	require.Nil(t, err)
	p, err := crypto.MarshalPublicKey(k.GetPublic())
	require.Nil(t, err)
	assert.Equal(t, pub, p)
	_, err = GenPubkey("zz")
	assert.NotNil(t, err)
}

func TestStart(t *testing.T) {
	n := memnet.NewNetwork()
	seed := newManager(t, n, Config{IsSeed: true})
	self, err := await(t, seed.m.Start(dhttypes.MasterPeerPort))
	require.Nil(t, err)
	assert.Equal(t, Ready, seed.m.State())
	assert.Equal(t, []string{"binding", "publishing", "ready"}, seed.drain())

	// 自身地址发布在 Hash(pubHex)
	rec, err := n.Store().Get(context.Background(), key.PeerAddress(seed.m.Identity().PubKeyHex()), key.Zero)
	require.Nil(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Protected)
	var addr types.PeerAddress
	require.Nil(t, json.Unmarshal(rec.Payload, &addr))
	assert.Equal(t, self.ID, addr.ID)

	_, err = await(t, seed.m.Start(dhttypes.MasterPeerPort))
	assert.Equal(t, types.ErrAlreadyStarted, err)

	// 端口被种子占用, 回退到派生端口, 通过广播找到种子
	peer := newManager(t, n, Config{})
	self, err = await(t, peer.m.Start(dhttypes.MasterPeerPort))
	require.Nil(t, err)
	assert.Equal(t, []string{"binding", "bootstrapping", "discovering", "publishing", "ready"}, peer.drain())
	assert.NotEqual(t, "/ip4/127.0.0.1/tcp/5000", self.Addrs[0])
	assert.Equal(t, 2, n.Size())
	assert.Equal(t, 1, len(peer.m.book.Addrs()))
	assert.Equal(t, self, peer.m.Self())
	assert.NotNil(t, peer.m.Facade())

	peer.m.Shutdown()
	assert.Equal(t, Stopped, peer.m.State())
	assert.Equal(t, 1, n.Size())
	peer.m.Shutdown()
	assert.Equal(t, []string{"stopped"}, peer.drain())
}

func TestStartFailed(t *testing.T) {
	n := memnet.NewNetwork()
	node := newManager(t, n, Config{})
	_, err := await(t, node.m.Start(dhttypes.MasterPeerPort))
	assert.Equal(t, types.ErrNoSeed, err)
	assert.Equal(t, Failed, node.m.State())
	assert.Equal(t, []string{"binding", "bootstrapping", "failed"}, node.drain())
	assert.Equal(t, 0, n.Size())

	node.m.Shutdown()
	assert.Equal(t, Stopped, node.m.State())
}

func TestShutdownNotStarted(t *testing.T) {
	node := newManager(t, memnet.NewNetwork(), Config{})
	node.m.Shutdown()
	assert.Equal(t, Uninitialized, node.m.State())
}

type blockingBinder struct{}

func (blockingBinder) Bind(ctx context.Context, _ crypto.PrivKey, _ int) (protocol.Engine, error) {
	<-ctx.Done()
	return nil, types.ErrTimeout
}

type busyBinder struct {
	tried []int
}

func (b *busyBinder) Bind(_ context.Context, _ crypto.PrivKey, port int) (protocol.Engine, error) {
	b.tried = append(b.tried, port)
	return nil, types.ErrPortInUse
}

func TestStartTimeout(t *testing.T) {
	node := newManager(t, blockingBinder{}, Config{BootstrapTimeout: 50 * time.Millisecond})
	_, err := await(t, node.m.Start(dhttypes.MasterPeerPort))
	assert.Equal(t, types.ErrTimeout, err)
	assert.Equal(t, Failed, node.m.State())

	busy := &busyBinder{}
	node = newManager(t, busy, Config{PortAttempts: 3})
	_, err = await(t, node.m.Start(dhttypes.MasterPeerPort))
	assert.Equal(t, types.ErrPortInUse, err)
	assert.Equal(t, 3, len(busy.tried))
}
