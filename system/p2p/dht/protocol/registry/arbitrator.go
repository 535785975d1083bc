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

// Arbitrators directory at the fixed "Arbitrators" location
type Arbitrators struct {
	base
}

// NewArbitrators new directory
func NewArbitrators(env *Env) *Arbitrators {
	return &Arbitrators{base: newBase(env)}
}

// Register add or update an arbitrator
func (a *Arbitrators) Register(arb *types.Arbitrator) *queue.Future[struct{}] {
	q := a.facade.Queue()
	if arb == nil || arb.ID == "" {
		return queue.Failed[struct{}](q, types.ErrInvalidParam)
	}
	data, err := arb.Encode()
	if err != nil {
		a.publish(&event.ArbitratorAdded{Arbitrator: arb, Err: err})
		return queue.Failed[struct{}](q, err)
	}
	loc := key.Arbitrators()
	out := queue.NewFuture[struct{}](q)
	a.facade.Put(loc, key.Hash(arb.ID), a.ownedRecord(data)).AddListener(func(_ struct{}, err error) {
		if err != nil {
			rlog.Error("Register", "arbitrator", arb.ID, "err", err)
		}
		a.settle(loc, err, func() {
			a.publish(&event.ArbitratorAdded{Arbitrator: arb, Success: err == nil, Err: err})
			out.Complete(struct{}{}, err)
		})
	})
	return out
}

// Unregister remove an arbitrator registered by this node
func (a *Arbitrators) Unregister(arb *types.Arbitrator) *queue.Future[*types.Record] {
	q := a.facade.Queue()
	if arb == nil || arb.ID == "" {
		return queue.Failed[*types.Record](q, types.ErrInvalidParam)
	}
	loc := key.Arbitrators()
	out := queue.NewFuture[*types.Record](q)
	a.facade.Remove(loc, key.Hash(arb.ID)).AddListener(func(rec *types.Record, err error) {
		if err != nil {
			rlog.Error("Unregister", "arbitrator", arb.ID, "err", err)
		}
		a.settle(loc, err, func() { out.Complete(rec, err) })
	})
	return out
}

// ListAll raw records of every arbitrator
func (a *Arbitrators) ListAll() *queue.Future[map[key.Key]*types.Record] {
	return a.ListByLanguage("")
}

// ListByLanguage records of arbitrators speaking lang, every arbitrator when lang is empty
func (a *Arbitrators) ListByLanguage(lang string) *queue.Future[map[key.Key]*types.Record] {
	out := queue.NewFuture[map[key.Key]*types.Record](a.facade.Queue())
	a.facade.GetAll(key.Arbitrators()).AddListener(func(records map[key.Key]*types.Record, err error) {
		if err != nil {
			rlog.Error("ListByLanguage", "lang", lang, "err", err)
		} else if lang != "" {
			records = filterLanguage(records, lang)
		}
		a.publish(&event.ArbitratorsReceived{Language: lang, Records: records, Success: err == nil, Err: err})
		out.Complete(records, err)
	})
	return out
}

// PollDirty whether the directory changed since the last poll
func (a *Arbitrators) PollDirty() *queue.Future[freshness.Freshness] {
	return a.tracker.PollDirty(key.Arbitrators())
}

func filterLanguage(records map[key.Key]*types.Record, lang string) map[key.Key]*types.Record {
	filtered := make(map[key.Key]*types.Record)
	for content, rec := range records {
		arb, err := types.DecodeArbitrator(rec.Payload)
		if err != nil || !arb.Speaks(lang) {
			continue
		}
		filtered[content] = rec
	}
	return filtered
}

// DecodeArbitrators decode payloads, undecodable records are skipped
func DecodeArbitrators(records map[key.Key]*types.Record) []*types.Arbitrator {
	arbs := make([]*types.Arbitrator, 0, len(records))
	for _, rec := range records {
		if arb, err := types.DecodeArbitrator(rec.Payload); err == nil {
			arbs = append(arbs, arb)
		}
	}
	return arbs
}
