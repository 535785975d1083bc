// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/freshness"
	"github.com/33cn/tradenet/types"
)

// OfferBook offers by currency code
type OfferBook struct {
	base
}

// NewOfferBook new offer book
func NewOfferBook(env *Env) *OfferBook {
	return &OfferBook{base: newBase(env)}
}

func offerKeys(offer *types.Offer) (key.Key, key.Key) {
	return key.Offers(offer.CurrencyCode), key.Hash(offer.ID)
}

// Publish add the offer to the book of its currency
func (o *OfferBook) Publish(offer *types.Offer) *queue.Future[struct{}] {
	q := o.facade.Queue()
	if offer == nil || offer.ID == "" {
		return queue.Failed[struct{}](q, types.ErrInvalidParam)
	}
	data, err := offer.Encode()
	if err != nil {
		o.publish(&event.OfferAdded{Offer: offer, Err: err})
		return queue.Failed[struct{}](q, err)
	}
	loc, content := offerKeys(offer)
	out := queue.NewFuture[struct{}](q)
	o.facade.Put(loc, content, o.ownedRecord(data)).AddListener(func(_ struct{}, err error) {
		if err != nil {
			rlog.Error("Publish", "offer", offer.ID, "currency", offer.CurrencyCode, "err", err)
		}
		o.settle(loc, err, func() {
			o.publish(&event.OfferAdded{Offer: offer, Success: err == nil, Err: err})
			out.Complete(struct{}{}, err)
		})
	})
	return out
}

// Fetch raw records of a currency's offer book
func (o *OfferBook) Fetch(currencyCode string) *queue.Future[map[key.Key]*types.Record] {
	out := queue.NewFuture[map[key.Key]*types.Record](o.facade.Queue())
	o.facade.GetAll(key.Offers(currencyCode)).AddListener(func(records map[key.Key]*types.Record, err error) {
		if err != nil {
			rlog.Error("Fetch", "currency", currencyCode, "err", err)
		}
		o.publish(&event.OffersReceived{CurrencyCode: currencyCode, Records: records, Success: err == nil, Err: err})
		out.Complete(records, err)
	})
	return out
}

// Withdraw remove the offer, resolves with the removed record
func (o *OfferBook) Withdraw(offer *types.Offer) *queue.Future[*types.Record] {
	q := o.facade.Queue()
	if offer == nil || offer.ID == "" {
		return queue.Failed[*types.Record](q, types.ErrInvalidParam)
	}
	loc, content := offerKeys(offer)
	out := queue.NewFuture[*types.Record](q)
	o.facade.Remove(loc, content).AddListener(func(rec *types.Record, err error) {
		if err != nil {
			rlog.Error("Withdraw", "offer", offer.ID, "currency", offer.CurrencyCode, "err", err)
		}
		o.settle(loc, err, func() {
			o.publish(&event.OfferRemoved{Offer: offer, Success: err == nil, Err: err})
			out.Complete(rec, err)
		})
	})
	return out
}

// PollDirty whether the book of currencyCode changed since the last poll
func (o *OfferBook) PollDirty(currencyCode string) *queue.Future[freshness.Freshness] {
	return o.tracker.PollDirty(key.Offers(currencyCode))
}

// DecodeOffers decode payloads, undecodable records are skipped
func DecodeOffers(records map[key.Key]*types.Record) []*types.Offer {
	offers := make([]*types.Offer, 0, len(records))
	for content, rec := range records {
		offer, err := types.DecodeOffer(rec.Payload)
		if err != nil {
			rlog.Debug("DecodeOffers", "content", content, "err", err)
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}
