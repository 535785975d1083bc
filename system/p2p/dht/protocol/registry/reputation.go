// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
)

// Reputation ledger.
//
// The root of a public key lives at key.Reputation(pubHex) and is domain protected by the
// location key bytes themselves: nobody holds a private key for them, so the namespace can
// neither be reclaimed nor deleted, while anybody can verify the claim. Each reporter owns
// exactly one protected entry per root, content keyed by the hash of its public key.
type Reputation struct {
	base
	// roots established by this process, only touched on the queue
	roots map[key.Key]*queue.Future[struct{}]
}

// NewReputation new ledger
func NewReputation(env *Env) *Reputation {
	return &Reputation{base: newBase(env), roots: make(map[key.Key]*queue.Future[struct{}])}
}

// RootOwner domain owner key of the root of pubHex
func RootOwner(pubHex string) []byte {
	return key.Reputation(pubHex).Bytes()
}

func (r *Reputation) selfHex() string {
	return hex.EncodeToString(r.facade.PubKey())
}

func (r *Reputation) entryKey() key.Key {
	return key.HashBytes(r.facade.PubKey())
}

// EstablishRoot claim the reputation root of the local identity. Repeated calls, including
// after a restart, leave the existing root untouched.
func (r *Reputation) EstablishRoot() *queue.Future[struct{}] {
	q := r.facade.Queue()
	out := queue.NewFuture[struct{}](q)
	pubHex := r.selfHex()
	loc, content := key.Reputation(pubHex), r.entryKey()
	err := q.Post(func() {
		if f, ok := r.roots[loc]; ok {
			f.AddListener(func(v struct{}, err error) { out.Complete(v, err) })
			return
		}
		r.roots[loc] = out
		r.facade.GetContent(loc, content).AddListener(func(rec *types.Record, err error) {
			if err != nil {
				r.rootDone(loc, out, err)
				return
			}
			// 只有自己签名的 entry 才算已经建立, 别人抢先写入的记录会被覆盖或者拒绝
			if rec != nil && rec.Protected && rec.OwnedBy(r.facade.PubKey()) {
				rlog.Debug("EstablishRoot", "root", loc, "exists", true)
				r.rootDone(loc, out, nil)
				return
			}
			r.facade.PutDomainProtected(loc, content, r.ownedRecord(nil), RootOwner(pubHex)).AddListener(func(_ struct{}, err error) {
				r.settle(loc, err, func() { r.rootDone(loc, out, err) })
			})
		})
	})
	if err != nil {
		out.Complete(struct{}{}, err)
	}
	return out
}

// rootDone runs on the queue, a failed claim can be retried
func (r *Reputation) rootDone(loc key.Key, out *queue.Future[struct{}], err error) {
	if err != nil {
		rlog.Error("EstablishRoot", "root", loc, "err", err)
		delete(r.roots, loc)
	}
	out.Complete(struct{}{}, err)
}

// RecordEvent write our entry under the root of peerPubHex, replacing our previous one
func (r *Reputation) RecordEvent(peerPubHex string, evidence *types.ReputationEvidence) *queue.Future[struct{}] {
	q := r.facade.Queue()
	if peerPubHex == "" || evidence == nil {
		return queue.Failed[struct{}](q, types.ErrInvalidParam)
	}
	ev := *evidence
	ev.Reporter = r.selfHex()
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	if ev.Kind == "" {
		ev.Kind = types.EvidenceTrade
	}
	return r.put(key.Reputation(peerPubHex), &ev)
}

// AddOfferFeePayment record proof of an offer fee payment in our own root.
// Only the tx and the paying key are published, not the trade itself.
func (r *Reputation) AddOfferFeePayment(txID, feePubKey string) *queue.Future[struct{}] {
	q := r.facade.Queue()
	if txID == "" {
		return queue.Failed[struct{}](q, types.ErrInvalidParam)
	}
	ev := &types.ReputationEvidence{
		Kind:      types.EvidenceOfferFee,
		Reporter:  r.selfHex(),
		TxID:      txID,
		FeePubKey: feePubKey,
		Timestamp: time.Now().UnixMilli(),
	}
	return r.put(key.Reputation(r.selfHex()), ev)
}

// RecordTrade increment our trade counter under the root of peerPubHex
func (r *Reputation) RecordTrade(peerPubHex, txID string) *queue.Future[struct{}] {
	q := r.facade.Queue()
	if peerPubHex == "" {
		return queue.Failed[struct{}](q, types.ErrInvalidParam)
	}
	loc := key.Reputation(peerPubHex)
	return queue.Then(r.facade.GetContent(loc, r.entryKey()), func(rec *types.Record) *queue.Future[struct{}] {
		var count int64
		if rec != nil && len(rec.Payload) > 0 {
			if old, err := types.DecodeEvidence(rec.Payload); err == nil {
				count = old.Count
			}
		}
		return r.RecordEvent(peerPubHex, &types.ReputationEvidence{Kind: types.EvidenceTrade, TxID: txID, Count: count + 1})
	})
}

func (r *Reputation) put(loc key.Key, ev *types.ReputationEvidence) *queue.Future[struct{}] {
	q := r.facade.Queue()
	data, err := ev.Encode()
	if err != nil {
		return queue.Failed[struct{}](q, errors.Wrap(err, "encode evidence"))
	}
	out := queue.NewFuture[struct{}](q)
	r.facade.Put(loc, r.entryKey(), r.ownedRecord(data)).AddListener(func(_ struct{}, err error) {
		if err != nil {
			rlog.Error("RecordEvent", "root", loc, "kind", ev.Kind, "err", err)
		}
		r.settle(loc, err, func() {
			r.publish(&event.ReputationRecorded{Root: loc, Evidence: ev, Success: err == nil, Err: err})
			out.Complete(struct{}{}, err)
		})
	})
	return out
}

// Entries decoded evidence under the root of pubHex by reporter entry key, the empty root marker is skipped
func (r *Reputation) Entries(pubHex string) *queue.Future[map[key.Key]*types.ReputationEvidence] {
	out := queue.NewFuture[map[key.Key]*types.ReputationEvidence](r.facade.Queue())
	r.facade.GetAll(key.Reputation(pubHex)).AddListener(func(records map[key.Key]*types.Record, err error) {
		if err != nil {
			out.Complete(nil, err)
			return
		}
		entries := make(map[key.Key]*types.ReputationEvidence)
		for content, rec := range records {
			if len(rec.Payload) == 0 {
				continue
			}
			ev, err := types.DecodeEvidence(rec.Payload)
			if err != nil {
				rlog.Debug("Entries", "content", content, "err", err)
				continue
			}
			entries[content] = ev
		}
		out.Complete(entries, nil)
	})
	return out
}

// VerifyRoot whether the root of pubHex is protected by its derived domain key
// and the owner holds its entry in it
func (r *Reputation) VerifyRoot(pubHex string) *queue.Future[bool] {
	q := r.facade.Queue()
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return queue.Failed[bool](q, types.ErrInvalidParam)
	}
	loc := key.Reputation(pubHex)
	return queue.Then(r.facade.DomainOwner(loc), func(owner []byte) *queue.Future[bool] {
		if !bytes.Equal(owner, RootOwner(pubHex)) {
			rlog.Debug("VerifyRoot", "root", loc, "domain owner", hex.EncodeToString(owner))
			return queue.Succeeded(q, false)
		}
		out := queue.NewFuture[bool](q)
		r.facade.GetContent(loc, key.HashBytes(pub)).AddListener(func(rec *types.Record, err error) {
			out.Complete(err == nil && rec != nil && rec.Protected && rec.OwnedBy(pub), err)
		})
		return out
	})
}
