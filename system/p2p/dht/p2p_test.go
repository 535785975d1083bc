// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dht

import (
	"context"
	"testing"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/bootstrap"
	"github.com/33cn/tradenet/system/p2p/dht/engine/memnet"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/registry"
	p2pty "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
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

func memCfg(isSeed bool) *types.P2P {
	return &types.P2P{
		Engine:           p2pty.EngineMemnet,
		Port:             p2pty.MasterPeerPort,
		IsSeed:           isSeed,
		ConnLifetime:     2,
		BootstrapTimeout: 5,
	}
}

func newNode(t *testing.T, network *memnet.Network, isSeed bool) *P2P {
	p, err := New(memCfg(isSeed), network)
	require.Nil(t, err)
	t.Cleanup(p.Close)
	_, err = await(t, p.Start())
	require.Nil(t, err)
	require.Equal(t, bootstrap.Ready, p.State())
	return p
}

type buyer struct {
	id  string
	fee chan *types.TakeOfferFeePayed
}

func (b *buyer) TradeID() string { return b.id }
func (b *buyer) OnTakeOfferFeePayed(msg *types.TakeOfferFeePayed, sender types.PeerAddress) {
	b.fee <- msg
}
func (b *buyer) OnRequestOffererPublishDepositTx(msg *types.RequestOffererPublishDepositTx, sender types.PeerAddress) {
}
func (b *buyer) OnDepositTxPublished(msg *types.DepositTxPublished, sender types.PeerAddress) {}
func (b *buyer) OnPayoutTxPublished(msg *types.PayoutTxPublished, sender types.PeerAddress)   {}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.Equal(t, types.ErrInvalidParam, err)
	_, err = New(&types.P2P{Engine: "tcp"}, nil)
	assert.Equal(t, types.ErrInvalidParam, errors.Cause(err))

	p, err := New(memCfg(true), nil)
	require.Nil(t, err)
	assert.Nil(t, p.Offers())
	assert.Nil(t, p.Messenger())
	p.Close()
	p.Close()
	_, err = await(t, p.Start())
	assert.Equal(t, types.ErrIsClosed, err)
}

func TestTwoNodes(t *testing.T) {
	network := memnet.NewNetwork()
	seed := newNode(t, network, true)
	peer := newNode(t, network, false)
	assert.NotEqual(t, seed.Self().ID, peer.Self().ID)
	require.NotNil(t, seed.Tracker())

	// offer book
	offer := &types.Offer{ID: "T1", CurrencyCode: "EUR", Direction: types.Buy, Amount: types.Coin, OffererPubKey: seed.Identity().PubKeyHex()}
	_, err := await(t, seed.Offers().Publish(offer))
	require.Nil(t, err)
	records, err := await(t, peer.Offers().Fetch("EUR"))
	require.Nil(t, err)
	offers := registry.DecodeOffers(records)
	require.Equal(t, 1, len(offers))
	assert.Equal(t, "T1", offers[0].ID)

	// direct messages through the dispatcher of the offerer
	b := &buyer{id: "T1", fee: make(chan *types.TakeOfferFeePayed, 1)}
	seed.Dispatcher().RegisterBuyerProtocol(b)
	require.Nil(t, seed.Queue().Flush(context.Background()))

	alive, err := await(t, peer.Messenger().PingPeer(seed.Identity().PubKeyHex()))
	require.Nil(t, err)
	assert.True(t, alive)

	msg := &types.TakeOfferFeePayed{TradeHeader: types.TradeHeader{ID: "T1"}, TakeOfferFeeTxID: "tx1", TakerPubKey: peer.Identity().PubKeyHex()}
	_, err = await(t, peer.Messenger().SendToPeer(seed.Identity().PubKeyHex(), msg))
	require.Nil(t, err)
	assert.Equal(t, "tx1", (<-b.fee).TakeOfferFeeTxID)

	// no protocol for T2 on the seed
	msg.ID = "T2"
	_, err = await(t, peer.Messenger().SendToPeer(seed.Identity().PubKeyHex(), msg))
	assert.Equal(t, types.ErrNoProtocol, errors.Cause(err))

	// reputation root
	_, err = await(t, peer.Reputation().EstablishRoot())
	require.Nil(t, err)
	ok, err := await(t, seed.Reputation().VerifyRoot(peer.Identity().PubKeyHex()))
	require.Nil(t, err)
	assert.True(t, ok)

	peer.Close()
	assert.Equal(t, bootstrap.Stopped, peer.State())
	assert.Equal(t, 1, network.Size())
}
