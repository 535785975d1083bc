// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"context"
	"testing"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLogLevel("error")
}

func flush(t *testing.T, q *queue.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, q.Flush(ctx))
}

func TestSubscribePublish(t *testing.T) {
	q := queue.New("event")
	defer q.Close()
	bus := NewBus(q)

	var got []Kind
	cancel := bus.Subscribe(func(ev Event) { got = append(got, ev.Kind()) }, KindDirtyChanged, KindPingResult)
	bus.Publish(&DirtyChanged{Location: key.Hash("USD"), Timestamp: 1})
	bus.Publish(&PingResult{Alive: true})
	bus.Publish(&RoutingFailed{TradeID: "T2"})
	flush(t, q)
	assert.Equal(t, []Kind{KindDirtyChanged, KindPingResult}, got)

	cancel()
	bus.Publish(&PingResult{})
	flush(t, q)
	assert.Equal(t, 2, len(got))

	q.Post(func() { assert.Equal(t, 0, bus.Subscribers(KindPingResult)) })
	flush(t, q)
}

func TestPanicSubscriber(t *testing.T) {
	q := queue.New("event")
	defer q.Close()
	bus := NewBus(q)
	bus.Subscribe(func(ev Event) { panic("listener") }, KindRoutingFailed)
	n := 0
	bus.Subscribe(func(ev Event) { n++ }, KindRoutingFailed)
	bus.Publish(&RoutingFailed{TradeID: "T"})
	flush(t, q)
	assert.Equal(t, 1, n)
	assert.Equal(t, "RoutingFailed", KindRoutingFailed.String())
	assert.Equal(t, "Unknown", Kind(100).String())
}

type orderBook struct {
	added    []*types.Offer
	removed  []*types.Offer
	received int
	success  []bool
}

func (o *orderBook) OnOfferAdded(offer *types.Offer, success bool) {
	o.added = append(o.added, offer)
	o.success = append(o.success, success)
}

func (o *orderBook) OnOffersReceived(records map[key.Key]*types.Record, success bool) {
	o.received += len(records)
}

func (o *orderBook) OnOfferRemoved(offer *types.Offer, success bool) {
	o.removed = append(o.removed, offer)
}

type pinger struct{ results map[string]bool }

func (p *pinger) OnPingPeerResult(pubKeyHex string, alive bool) { p.results[pubKeyHex] = alive }

func TestListeners(t *testing.T) {
	q := queue.New("event")
	defer q.Close()
	bus := NewBus(q)

	ob := &orderBook{}
	remove := bus.AddOrderBookListener(ob)
	p := &pinger{results: make(map[string]bool)}
	bus.AddPingPeerListener(p)

	offer := &types.Offer{ID: "o1", CurrencyCode: "USD"}
	bus.Publish(&OfferAdded{Offer: offer, Success: false})
	bus.Publish(&OffersReceived{CurrencyCode: "USD", Records: map[key.Key]*types.Record{key.Hash("o1"): {}}, Success: true})
	bus.Publish(&OfferRemoved{Offer: offer, Success: true})
	bus.Publish(&PingResult{PubKeyHex: "ab", Alive: true})
	flush(t, q)

	assert.Equal(t, []*types.Offer{offer}, ob.added)
	assert.Equal(t, []bool{false}, ob.success)
	assert.Equal(t, 1, ob.received)
	assert.Equal(t, 1, len(ob.removed))
	assert.True(t, p.results["ab"])

	remove()
	bus.Publish(&OfferAdded{Offer: offer, Success: true})
	flush(t, q)
	assert.Equal(t, 1, len(ob.added))
}
