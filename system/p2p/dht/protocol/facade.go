// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"context"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/metrics"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
)

var plog = log.New("module", "p2p.protocol")

// DefaultOpTimeout bound of a single dht operation
var DefaultOpTimeout = time.Minute

// Facade asynchronous access to the dht.
// Every method returns immediately, listeners of the returned futures run on the queue.
// Record protection is enforced by the engine, not here.
type Facade struct {
	engine   Engine
	q        *queue.Queue
	ctx      context.Context
	cancel   context.CancelFunc
	lifetime time.Duration
	timeout  time.Duration
}

// NewFacade wrap engine, direct sends are bounded by connLifetime
func NewFacade(engine Engine, q *queue.Queue, connLifetime time.Duration) *Facade {
	if connLifetime <= 0 {
		connLifetime = dhttypes.DefaultConnLifetime
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Facade{
		engine:   engine,
		q:        q,
		ctx:      ctx,
		cancel:   cancel,
		lifetime: connLifetime,
		timeout:  DefaultOpTimeout,
	}
}

// Queue callback context
func (f *Facade) Queue() *queue.Queue {
	return f.q
}

// Engine underlying engine
func (f *Facade) Engine() Engine {
	return f.engine
}

// Self local address
func (f *Facade) Self() types.PeerAddress {
	return f.engine.Self()
}

// PubKey local identity key
func (f *Facade) PubKey() []byte {
	return f.engine.PubKey()
}

// ConnLifetime bound of direct sends
func (f *Facade) ConnLifetime() time.Duration {
	return f.lifetime
}

// Put upsert a record
func (f *Facade) Put(loc, content key.Key, rec *types.Record) *queue.Future[struct{}] {
	return run(f, "put", f.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.engine.Put(ctx, loc, content, rec)
	})
}

// PutDomainProtected put and claim the whole location for domainOwner
func (f *Facade) PutDomainProtected(loc, content key.Key, rec *types.Record, domainOwner []byte) *queue.Future[struct{}] {
	return run(f, "putDomain", f.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.engine.PutDomainProtected(ctx, loc, content, rec, domainOwner)
	})
}

// Get single valued location, content key.Zero
func (f *Facade) Get(loc key.Key) *queue.Future[*types.Record] {
	return f.GetContent(loc, key.Zero)
}

// GetContent record at (loc, content), nil when absent
func (f *Facade) GetContent(loc, content key.Key) *queue.Future[*types.Record] {
	return run(f, "get", f.timeout, func(ctx context.Context) (*types.Record, error) {
		return f.engine.Get(ctx, loc, content)
	})
}

// GetAll every record at loc by content key
func (f *Facade) GetAll(loc key.Key) *queue.Future[map[key.Key]*types.Record] {
	return run(f, "getAll", f.timeout, func(ctx context.Context) (map[key.Key]*types.Record, error) {
		records, err := f.engine.GetAll(ctx, loc)
		if records == nil && err == nil {
			records = make(map[key.Key]*types.Record)
		}
		return records, err
	})
}

// Remove delete a record, resolves with the removed one
func (f *Facade) Remove(loc, content key.Key) *queue.Future[*types.Record] {
	return run(f, "remove", f.timeout, func(ctx context.Context) (*types.Record, error) {
		return f.engine.Remove(ctx, loc, content)
	})
}

// DomainOwner key protecting loc, nil when unclaimed
func (f *Facade) DomainOwner(loc key.Key) *queue.Future[[]byte] {
	return run(f, "domainOwner", f.timeout, func(ctx context.Context) ([]byte, error) {
		return f.engine.DomainOwner(ctx, loc)
	})
}

// SendDirect send payload to a peer, resolves with the reply
func (f *Facade) SendDirect(to types.PeerAddress, payload []byte) *queue.Future[[]byte] {
	return run(f, "sendDirect", f.lifetime, func(ctx context.Context) ([]byte, error) {
		return f.engine.SendDirect(ctx, to, payload)
	})
}

// Close fail every in-flight operation
func (f *Facade) Close() {
	f.cancel()
}

func run[T any](f *Facade, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) *queue.Future[T] {
	if f.ctx.Err() != nil {
		return queue.Failed[T](f.q, types.ErrIsClosed)
	}
	timer := metrics.Timer("p2p.dht." + op)
	return queue.Go(f.q, func() (T, error) {
		ctx, cancel := context.WithTimeout(f.ctx, timeout)
		defer cancel()
		start := time.Now()
		val, err := fn(ctx)
		timer.UpdateSince(start)
		if err != nil {
			metrics.Counter("p2p.dht." + op + ".failed").Inc(1)
			plog.Debug(op, "err", err)
			if ctx.Err() == context.DeadlineExceeded {
				err = types.ErrTimeout
			} else if f.ctx.Err() != nil {
				err = types.ErrIsClosed
			}
		}
		return val, err
	})
}
