// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch routes inbound trade messages to the per trade protocols
package dispatch

import (
	"fmt"
	"runtime/debug"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/metrics"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
)

var dlog = log.New("module", "p2p.dispatch")

// Dispatcher role partitioned protocol maps, only accessed on the queue
type Dispatcher struct {
	q       *queue.Queue
	bus     *event.Bus
	buyers  map[string]BuyerProtocol
	sellers map[string]SellerProtocol
}

// New dispatcher with take offer requests published on bus
func New(bus *event.Bus) *Dispatcher {
	return &Dispatcher{
		q:       bus.Queue(),
		bus:     bus,
		buyers:  make(map[string]BuyerProtocol),
		sellers: make(map[string]SellerProtocol),
	}
}

func (d *Dispatcher) post(fn func()) {
	if err := d.q.Post(fn); err != nil {
		dlog.Debug("post", "err", err)
	}
}

// RegisterBuyerProtocol replaces any protocol registered for the same trade
func (d *Dispatcher) RegisterBuyerProtocol(p BuyerProtocol) {
	d.post(func() { d.buyers[p.TradeID()] = p })
}

// UnregisterBuyerProtocol removes p if it is still the registered one
func (d *Dispatcher) UnregisterBuyerProtocol(p BuyerProtocol) {
	d.post(func() {
		if d.buyers[p.TradeID()] == p {
			delete(d.buyers, p.TradeID())
		}
	})
}

// RegisterSellerProtocol replaces any protocol registered for the same trade
func (d *Dispatcher) RegisterSellerProtocol(p SellerProtocol) {
	d.post(func() { d.sellers[p.TradeID()] = p })
}

// UnregisterSellerProtocol removes p if it is still the registered one
func (d *Dispatcher) UnregisterSellerProtocol(p SellerProtocol) {
	d.post(func() {
		if d.sellers[p.TradeID()] == p {
			delete(d.sellers, p.TradeID())
		}
	})
}

// Deliver posts msg to the queue and resolves with the routing result
func (d *Dispatcher) Deliver(msg types.TradeMessage, sender types.PeerAddress) *queue.Future[struct{}] {
	out := queue.NewFuture[struct{}](d.q)
	if err := d.q.Post(func() { out.Complete(struct{}{}, d.Dispatch(msg, sender)) }); err != nil {
		out.Complete(struct{}{}, err)
	}
	return out
}

// Dispatch route msg, must run on the queue.
// A trade without registered protocol is reported as RoutingFailed and types.ErrNoProtocol.
func (d *Dispatcher) Dispatch(msg types.TradeMessage, sender types.PeerAddress) (err error) {
	if msg == nil {
		return types.ErrInvalidParam
	}
	r, ok := routes[msg.Tag()]
	if !ok {
		return errors.Wrapf(types.ErrUnknownMessage, "tag %s", msg.Tag())
	}
	defer func() {
		if rec := recover(); rec != nil {
			dlog.Error("Dispatch", "tag", msg.Tag(), "trade", msg.TradeID(), "panic", fmt.Sprint(rec), "trace", string(debug.Stack()))
			err = errors.Errorf("protocol panic: %v", rec)
		}
	}()

	id := msg.TradeID()
	buyer, hasBuyer := d.buyers[id]
	seller, hasSeller := d.sellers[id]
	delivered := false
	switch r.role {
	case roleListeners:
		d.bus.Publish(&event.TakeOfferRequested{Message: msg.(*types.RequestTakeOffer), Sender: sender})
		delivered = true
	case roleBuyer:
		if hasBuyer {
			r.buyer(buyer, msg, sender)
			delivered = true
		}
	case roleSeller:
		if hasSeller {
			r.seller(seller, msg, sender)
			delivered = true
		}
	case roleEither:
		if hasSeller {
			r.seller(seller, msg, sender)
			delivered = true
		} else if hasBuyer {
			r.buyer(buyer, msg, sender)
			delivered = true
		}
	}
	if delivered {
		metrics.Counter("p2p.dispatch.delivered").Inc(1)
		return nil
	}
	err = errors.Wrapf(types.ErrNoProtocol, "trade %s tag %s", id, msg.Tag())
	metrics.Counter("p2p.dispatch.routing_failed").Inc(1)
	dlog.Error("Dispatch", "trade", id, "tag", msg.Tag(), "from", sender.ID, "err", err)
	d.bus.Publish(&event.RoutingFailed{TradeID: id, Tag: msg.Tag(), Sender: sender, Err: err})
	return err
}
