// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry offer book, arbitrator directory and reputation ledger on top of the dht facade.
// Listeners are always notified with a success flag; successful mutations mark the location dirty.
package registry

import (
	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/freshness"
	"github.com/33cn/tradenet/types"
)

var rlog = log.New("module", "p2p.registry")

type base struct {
	facade  *protocol.Facade
	tracker *freshness.Tracker
	bus     *event.Bus
}

// Env dependencies shared by the registries
type Env struct {
	Facade  *protocol.Facade
	Tracker *freshness.Tracker
	Bus     *event.Bus
}

func newBase(env *Env) base {
	return base{facade: env.Facade, tracker: env.Tracker, bus: env.Bus}
}

// ownedRecord record protected by the local identity
func (b *base) ownedRecord(payload []byte) *types.Record {
	return &types.Record{Payload: payload, Protected: true, OwnerKey: b.facade.PubKey()}
}

// settle runs on the queue once a write resolved, a successful write marks loc dirty before done is called
func (b *base) settle(loc key.Key, err error, done func()) {
	if err != nil {
		done()
		return
	}
	b.tracker.MarkDirty(loc).AddListener(func(_ int64, err error) {
		if err != nil {
			rlog.Error("MarkDirty", "location", loc, "err", err)
		}
		done()
	})
}

func (b *base) publish(ev event.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}
