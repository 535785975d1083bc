// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package freshness dirty flag 机制
//
// dht 不支持推送, 每次修改一个 location 后在 key.Dirty(location) 写入修改时间,
// 读者轮询该时间来判断自己缓存的数据是否过期.
package freshness

import (
	"strconv"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/types"
)

var flog = log.New("module", "p2p.freshness")

// Freshness result of a poll
type Freshness int

// poll results
const (
	Unchanged Freshness = iota
	Changed
	// Unknown the flag could not be fetched
	Unknown
)

func (f Freshness) String() string {
	switch f {
	case Unchanged:
		return "Unchanged"
	case Changed:
		return "Changed"
	default:
		return "Unknown"
	}
}

// Tracker per location timestamps, only accessed on the facade queue
type Tracker struct {
	facade   *protocol.Facade
	bus      *event.Bus
	lastSeen map[key.Key]int64
	lastSelf map[key.Key]int64
	now      func() int64
}

// New tracker, bus may be nil
func New(facade *protocol.Facade, bus *event.Bus) *Tracker {
	return &Tracker{
		facade:   facade,
		bus:      bus,
		lastSeen: make(map[key.Key]int64),
		lastSelf: make(map[key.Key]int64),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// MarkDirty publish a new mutation timestamp for loc, resolves with the timestamp written.
// The current flag is read first so the new timestamp is above it whatever the local clock says.
func (t *Tracker) MarkDirty(loc key.Key) *queue.Future[int64] {
	out := queue.NewFuture[int64](t.facade.Queue())
	t.facade.Get(key.Dirty(loc)).AddListener(func(cur *types.Record, err error) {
		if err != nil {
			flog.Error("MarkDirty", "location", loc, "fetch err", err)
			out.Complete(0, err)
			return
		}
		ts := t.now()
		if last := timestamp(cur); ts <= last {
			ts = last + 1
		}
		if last := t.lastSeen[loc]; ts <= last {
			ts = last + 1
		}
		t.lastSelf[loc] = ts
		t.lastSeen[loc] = ts
		rec := &types.Record{Payload: []byte(strconv.FormatInt(ts, 10)), Timestamp: ts}
		t.facade.Put(key.Dirty(loc), key.Zero, rec).AddListener(func(_ struct{}, err error) {
			if err != nil {
				flog.Error("MarkDirty", "location", loc, "err", err)
			}
			out.Complete(ts, err)
		})
	})
	return out
}

// PollDirty compare the flag of loc with the last timestamp seen.
// The first poll of a location only records the timestamp.
func (t *Tracker) PollDirty(loc key.Key) *queue.Future[Freshness] {
	out := queue.NewFuture[Freshness](t.facade.Queue())
	t.facade.Get(key.Dirty(loc)).AddListener(func(rec *types.Record, err error) {
		if err != nil {
			flog.Debug("PollDirty", "location", loc, "err", err)
			out.Complete(Unknown, nil)
			return
		}
		out.Complete(t.observe(loc, timestamp(rec)), nil)
	})
	return out
}

// observe runs on the queue
func (t *Tracker) observe(loc key.Key, ts int64) Freshness {
	seen, ok := t.lastSeen[loc]
	if !ok {
		t.lastSeen[loc] = ts
		return Unchanged
	}
	if ts <= seen {
		return Unchanged
	}
	t.lastSeen[loc] = ts
	if ts <= t.lastSelf[loc] {
		return Unchanged
	}
	if t.bus != nil {
		t.bus.Publish(&event.DirtyChanged{Location: loc, Timestamp: ts})
	}
	return Changed
}

func timestamp(rec *types.Record) int64 {
	if rec == nil || len(rec.Payload) == 0 {
		return 0
	}
	ts, err := strconv.ParseInt(string(rec.Payload), 10, 64)
	if err != nil {
		flog.Error("timestamp", "payload", string(rec.Payload), "err", err)
		return 0
	}
	return ts
}
