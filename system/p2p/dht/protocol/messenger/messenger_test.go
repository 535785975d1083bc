// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package messenger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/engine/memnet"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLogLevel("error")
}

type node struct {
	m      *Messenger
	f      *protocol.Facade
	bus    *event.Bus
	pubHex string
}

func newNode(t *testing.T, n *memnet.Network, port int, lifetime time.Duration) *node {
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 2048, rand.Reader)
	require.Nil(t, err)
	e, err := n.Bind(context.Background(), priv, port)
	require.Nil(t, err)
	q := queue.New("messenger")
	f := protocol.NewFacade(e, q, lifetime)
	bus := event.NewBus(q)
	m, err := New(f, bus, 0)
	require.Nil(t, err)
	t.Cleanup(func() {
		f.Close()
		q.Close()
		_ = e.Close()
	})
	return &node{m: m, f: f, bus: bus, pubHex: hex.EncodeToString(e.PubKey())}
}

func (nd *node) publishAddress(t *testing.T) {
	data, err := json.Marshal(nd.f.Self())
	require.Nil(t, err)
	rec := &types.Record{Payload: data, Protected: true, OwnerKey: nd.f.PubKey()}
	_, err = await(t, nd.f.Put(key.PeerAddress(nd.pubHex), key.Zero, rec))
	require.Nil(t, err)
}

func await[T any](t *testing.T, f *queue.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

type inbound struct {
	q   *queue.Queue
	got chan types.TradeMessage
	err error
}

func (in *inbound) Deliver(msg types.TradeMessage, sender types.PeerAddress) *queue.Future[struct{}] {
	if in.err != nil {
		return queue.Failed[struct{}](in.q, in.err)
	}
	in.got <- msg
	return queue.Succeeded(in.q, struct{}{})
}

func TestSend(t *testing.T) {
	n := memnet.NewNetwork()
	a, b := newNode(t, n, 5000, 0), newNode(t, n, 5001, 0)
	in := &inbound{q: b.f.Queue(), got: make(chan types.TradeMessage, 1)}
	b.m.Serve(in)

	msg := &types.DepositTxPublished{TradeHeader: types.TradeHeader{ID: "T1"}, DepositTx: "00ab"}
	_, err := await(t, a.m.Send(b.f.Self(), msg))
	require.Nil(t, err)
	got := <-in.got
	assert.Equal(t, msg, got)

	// routing error of the receiver fails the send
	in.err = errors.Wrap(types.ErrNoProtocol, "T2")
	_, err = await(t, a.m.Send(b.f.Self(), &types.PayoutTxPublished{TradeHeader: types.TradeHeader{ID: "T2"}}))
	assert.Equal(t, types.ErrNoProtocol, errors.Cause(err))

	// unreachable
	_, err = await(t, a.m.Send(types.PeerAddress{ID: "nobody"}, msg))
	assert.Equal(t, types.ErrPeerUnreachable, err)
	_, err = await(t, a.m.Send(b.f.Self(), nil))
	assert.Equal(t, types.ErrInvalidParam, err)
}

func TestIgnoreSelf(t *testing.T) {
	n := memnet.NewNetwork()
	a := newNode(t, n, 5000, 0)
	in := &inbound{q: a.f.Queue(), got: make(chan types.TradeMessage, 1)}
	a.m.Serve(in)
	_, err := await(t, a.m.Send(a.f.Self(), &types.PayoutTxPublished{TradeHeader: types.TradeHeader{ID: "T"}}))
	assert.Equal(t, types.ErrUnexpectedReply, err)
	assert.Equal(t, 0, len(in.got))
}

func TestPing(t *testing.T) {
	n := memnet.NewNetwork()
	a, b := newNode(t, n, 5000, 50*time.Millisecond), newNode(t, n, 5001, 0)
	results := make(chan *event.PingResult, 4)
	a.bus.Subscribe(func(ev event.Event) { results <- ev.(*event.PingResult) }, event.KindPingResult)

	// no listener on b yet
	alive, err := await(t, a.m.Ping(b.f.Self()))
	require.Nil(t, err)
	assert.False(t, alive)

	b.m.Serve(nil)
	alive, err = await(t, a.m.Ping(b.f.Self()))
	require.Nil(t, err)
	assert.True(t, alive)

	assert.False(t, (<-results).Alive)
	assert.True(t, (<-results).Alive)

	// a peer which never answers resolves false within the connection lifetime
	b.f.Engine().SetDirectHandler(func(sender types.PeerAddress, payload []byte) ([]byte, error) {
		time.Sleep(time.Second)
		return types.PongPayload, nil
	})
	start := time.Now()
	alive, err = await(t, a.m.Ping(b.f.Self()))
	require.Nil(t, err)
	assert.False(t, alive)
	assert.True(t, time.Since(start) < time.Second)
}

func TestPeerAddress(t *testing.T) {
	n := memnet.NewNetwork()
	a, b := newNode(t, n, 5000, 0), newNode(t, n, 5001, 0)
	_, err := await(t, a.m.GetPeerAddress(b.pubHex))
	assert.Equal(t, types.ErrNotFound, err)
	alive, err := await(t, a.m.PingPeer(b.pubHex))
	require.Nil(t, err)
	assert.False(t, alive)

	b.publishAddress(t)
	b.m.Serve(nil)
	addr, err := await(t, a.m.GetPeerAddress(b.pubHex))
	require.Nil(t, err)
	assert.Equal(t, b.f.Self().ID, addr.ID)
	_, ok := a.m.peers.Get(b.pubHex)
	assert.True(t, ok)

	alive, err = await(t, a.m.PingPeer(b.pubHex))
	require.Nil(t, err)
	assert.True(t, alive)

	in := &inbound{q: b.f.Queue(), got: make(chan types.TradeMessage, 1)}
	b.m.Serve(in)
	_, err = await(t, a.m.SendToPeer(b.pubHex, &types.TakeOfferFeePayed{TradeHeader: types.TradeHeader{ID: "T1"}}))
	require.Nil(t, err)
	assert.Equal(t, "T1", (<-in.got).TradeID())

	a.m.ForgetPeer(b.pubHex)
	_, ok = a.m.peers.Get(b.pubHex)
	assert.False(t, ok)
}
