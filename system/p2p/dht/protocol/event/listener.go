// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
)

// OrderBookListener offer book notifications
type OrderBookListener interface {
	OnOfferAdded(offer *types.Offer, success bool)
	OnOffersReceived(records map[key.Key]*types.Record, success bool)
	OnOfferRemoved(offer *types.Offer, success bool)
}

// ArbitratorListener arbitrator directory notifications
type ArbitratorListener interface {
	OnArbitratorAdded(arbitrator *types.Arbitrator, success bool)
	OnArbitratorsReceived(records map[key.Key]*types.Record, success bool)
}

// TakeOfferRequestListener take offer requests for our offers
type TakeOfferRequestListener interface {
	OnTakeOfferRequested(msg *types.RequestTakeOffer, sender types.PeerAddress)
}

// PingPeerListener ping results
type PingPeerListener interface {
	OnPingPeerResult(pubKeyHex string, alive bool)
}

// AddOrderBookListener returns the remove func
func (b *Bus) AddOrderBookListener(l OrderBookListener) func() {
	return b.Subscribe(func(ev Event) {
		switch e := ev.(type) {
		case *OfferAdded:
			l.OnOfferAdded(e.Offer, e.Success)
		case *OffersReceived:
			l.OnOffersReceived(e.Records, e.Success)
		case *OfferRemoved:
			l.OnOfferRemoved(e.Offer, e.Success)
		}
	}, KindOfferAdded, KindOffersReceived, KindOfferRemoved)
}

// AddArbitratorListener returns the remove func
func (b *Bus) AddArbitratorListener(l ArbitratorListener) func() {
	return b.Subscribe(func(ev Event) {
		switch e := ev.(type) {
		case *ArbitratorAdded:
			l.OnArbitratorAdded(e.Arbitrator, e.Success)
		case *ArbitratorsReceived:
			l.OnArbitratorsReceived(e.Records, e.Success)
		}
	}, KindArbitratorAdded, KindArbitratorsReceived)
}

// AddTakeOfferRequestListener returns the remove func
func (b *Bus) AddTakeOfferRequestListener(l TakeOfferRequestListener) func() {
	return b.Subscribe(func(ev Event) {
		if e, ok := ev.(*TakeOfferRequested); ok {
			l.OnTakeOfferRequested(e.Message, e.Sender)
		}
	}, KindTakeOfferRequested)
}

// AddPingPeerListener returns the remove func
func (b *Bus) AddPingPeerListener(l PingPeerListener) func() {
	return b.Subscribe(func(ev Event) {
		if e, ok := ev.(*PingResult); ok {
			l.OnPingPeerResult(e.PubKeyHex, e.Alive)
		}
	}, KindPingResult)
}
