// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package messenger point to point delivery of trade messages
package messenger

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/metrics"
	"github.com/33cn/tradenet/queue"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/system/p2p/dht/protocol/event"
	"github.com/33cn/tradenet/types"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

var mlog = log.New("module", "p2p.messenger")

// DefaultPeerCacheSize peer address cache entries
const DefaultPeerCacheSize = 256

// Inbound receiver of decoded trade messages, the returned future resolves once the message was routed
type Inbound interface {
	Deliver(msg types.TradeMessage, sender types.PeerAddress) *queue.Future[struct{}]
}

// Messenger direct messages over the facade
type Messenger struct {
	facade *protocol.Facade
	bus    *event.Bus
	peers  *lru.Cache
}

// New messenger, cacheSize <= 0 uses the default
func New(facade *protocol.Facade, bus *event.Bus, cacheSize int) (*Messenger, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPeerCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Messenger{facade: facade, bus: bus, peers: cache}, nil
}

// Send deliver msg to a peer, the future fails on transport errors, timeouts and remote routing errors
func (m *Messenger) Send(to types.PeerAddress, msg types.TradeMessage) *queue.Future[struct{}] {
	q := m.facade.Queue()
	payload, err := types.EncodeTradeMessage(uuid.New().String(), msg)
	if err != nil {
		return queue.Failed[struct{}](q, err)
	}
	out := queue.NewFuture[struct{}](q)
	m.facade.SendDirect(to, payload).AddListener(func(reply []byte, err error) {
		if err == nil && !bytes.Equal(reply, types.AckPayload) {
			err = types.ErrUnexpectedReply
		}
		if err != nil {
			metrics.Counter("p2p.messenger.send.failed").Inc(1)
			mlog.Error("Send", "to", to.ID, "tag", msg.Tag(), "trade", msg.TradeID(), "err", err)
		} else {
			metrics.Counter("p2p.messenger.send").Inc(1)
		}
		out.Complete(struct{}{}, err)
	})
	return out
}

// SendToPeer resolve the published address of pubKeyHex and send msg
func (m *Messenger) SendToPeer(pubKeyHex string, msg types.TradeMessage) *queue.Future[struct{}] {
	return queue.Then(m.GetPeerAddress(pubKeyHex), func(addr types.PeerAddress) *queue.Future[struct{}] {
		return m.Send(addr, msg)
	})
}

// Ping resolves true when the peer answers the probe, transport errors resolve false
func (m *Messenger) Ping(to types.PeerAddress) *queue.Future[bool] {
	return m.ping("", to)
}

func (m *Messenger) ping(pubKeyHex string, to types.PeerAddress) *queue.Future[bool] {
	out := queue.NewFuture[bool](m.facade.Queue())
	m.facade.SendDirect(to, types.PingPayload).AddListener(func(reply []byte, err error) {
		alive := err == nil && bytes.Equal(reply, types.PongPayload)
		if err != nil {
			mlog.Debug("Ping", "to", to.ID, "err", err)
		}
		metrics.Counter("p2p.messenger.ping").Inc(1)
		m.publish(&event.PingResult{PubKeyHex: pubKeyHex, Peer: to, Alive: alive})
		out.Complete(alive, nil)
	})
	return out
}

// PingPeer resolve the address of pubKeyHex and ping it, an unknown peer resolves false
func (m *Messenger) PingPeer(pubKeyHex string) *queue.Future[bool] {
	q := m.facade.Queue()
	out := queue.NewFuture[bool](q)
	m.GetPeerAddress(pubKeyHex).AddListener(func(addr types.PeerAddress, err error) {
		if err != nil {
			m.publish(&event.PingResult{PubKeyHex: pubKeyHex})
			out.Complete(false, nil)
			return
		}
		m.ping(pubKeyHex, addr).AddListener(func(alive bool, _ error) {
			if !alive {
				m.peers.Remove(pubKeyHex)
			}
			out.Complete(alive, nil)
		})
	})
	return out
}

// GetPeerAddress address published by the owner of pubKeyHex, types.ErrNotFound when absent
func (m *Messenger) GetPeerAddress(pubKeyHex string) *queue.Future[types.PeerAddress] {
	q := m.facade.Queue()
	if v, ok := m.peers.Get(pubKeyHex); ok {
		return queue.Succeeded(q, v.(types.PeerAddress))
	}
	out := queue.NewFuture[types.PeerAddress](q)
	m.facade.Get(key.PeerAddress(pubKeyHex)).AddListener(func(rec *types.Record, err error) {
		if err != nil {
			out.Complete(types.PeerAddress{}, err)
			return
		}
		if rec == nil {
			out.Complete(types.PeerAddress{}, types.ErrNotFound)
			return
		}
		var addr types.PeerAddress
		if err = json.Unmarshal(rec.Payload, &addr); err != nil || addr.IsEmpty() {
			out.Complete(types.PeerAddress{}, errors.Wrap(types.ErrInvalidMessage, "peer address"))
			return
		}
		m.peers.Add(pubKeyHex, addr)
		out.Complete(addr, nil)
	})
	return out
}

// ForgetPeer drop a cached address
func (m *Messenger) ForgetPeer(pubKeyHex string) {
	m.peers.Remove(pubKeyHex)
}

// Serve install the direct handler of the engine: pings are answered at once,
// our own messages are ignored, trade messages go to inbound.
func (m *Messenger) Serve(inbound Inbound) {
	self := m.facade.Self()
	lifetime := m.facade.ConnLifetime()
	m.facade.Engine().SetDirectHandler(func(sender types.PeerAddress, payload []byte) ([]byte, error) {
		if bytes.Equal(payload, types.PingPayload) {
			return types.PongPayload, nil
		}
		if sender.ID == self.ID {
			mlog.Debug("Serve", "ignore", "message from self")
			return nil, nil
		}
		metrics.Meter("p2p.messenger.inbound").Mark(1)
		id, msg, err := types.DecodeTradeMessage(payload)
		if err != nil {
			mlog.Error("Serve", "from", sender.ID, "id", id, "err", err)
			return nil, err
		}
		if inbound == nil {
			return nil, types.ErrNoProtocol
		}
		ctx, cancel := context.WithTimeout(context.Background(), lifetime)
		defer cancel()
		if _, err = inbound.Deliver(msg, sender).Await(ctx); err != nil {
			return nil, err
		}
		return types.AckPayload, nil
	})
}

func (m *Messenger) publish(ev event.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
