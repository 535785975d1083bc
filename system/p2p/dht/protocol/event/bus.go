// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"fmt"
	"runtime/debug"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
)

var elog = log.New("module", "p2p.event")

// Handler receives an event on the queue worker
type Handler func(ev Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fan-out of events. Subscriptions and deliveries are both executed on the queue,
// the subscriber lists are only touched by the queue worker.
type Bus struct {
	q      *queue.Queue
	subs   map[Kind][]*subscription
	nextID uint64
}

// NewBus bus delivering on q
func NewBus(q *queue.Queue) *Bus {
	return &Bus{q: q, subs: make(map[Kind][]*subscription)}
}

// Queue delivery context
func (b *Bus) Queue() *queue.Queue {
	return b.q
}

// Subscribe handler to kinds, the returned func cancels the subscription
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) (cancel func()) {
	if handler == nil || len(kinds) == 0 {
		return func() {}
	}
	sub := &subscription{handler: handler}
	b.post(func() {
		b.nextID++
		sub.id = b.nextID
		for _, k := range kinds {
			b.subs[k] = append(b.subs[k], sub)
		}
	})
	return func() {
		b.post(func() {
			for _, k := range kinds {
				b.subs[k] = remove(b.subs[k], sub)
			}
		})
	}
}

func remove(subs []*subscription, sub *subscription) []*subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish deliver ev to the current subscribers of its kind
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	b.post(func() {
		for _, sub := range b.subs[ev.Kind()] {
			b.deliver(sub, ev)
		}
	})
}

// deliver isolates a panicking subscriber from the others
func (b *Bus) deliver(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			elog.Error("deliver", "kind", ev.Kind(), "sub", sub.id, "panic", fmt.Sprint(r), "trace", string(debug.Stack()))
		}
	}()
	sub.handler(ev)
}

// Subscribers current subscriber count of kind, must run on the queue
func (b *Bus) Subscribers(kind Kind) int {
	return len(b.subs[kind])
}

func (b *Bus) post(fn func()) {
	if err := b.q.Post(fn); err != nil {
		elog.Debug("post", "err", err)
	}
}
