// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event typed notifications of the p2p layer
package event

import (
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
)

// Kind event category
type Kind int

// event kinds
const (
	KindOfferAdded Kind = iota + 1
	KindOfferRemoved
	KindOffersReceived
	KindArbitratorAdded
	KindArbitratorsReceived
	KindTakeOfferRequested
	KindPingResult
	KindRoutingFailed
	KindDirtyChanged
	KindBootstrapStateChanged
	KindReputationRecorded
)

var kindNames = map[Kind]string{
	KindOfferAdded:            "OfferAdded",
	KindOfferRemoved:          "OfferRemoved",
	KindOffersReceived:        "OffersReceived",
	KindArbitratorAdded:       "ArbitratorAdded",
	KindArbitratorsReceived:   "ArbitratorsReceived",
	KindTakeOfferRequested:    "TakeOfferRequested",
	KindPingResult:            "PingResult",
	KindRoutingFailed:         "RoutingFailed",
	KindDirtyChanged:          "DirtyChanged",
	KindBootstrapStateChanged: "BootstrapStateChanged",
	KindReputationRecorded:    "ReputationRecorded",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Event notification delivered on the queue
type Event interface {
	Kind() Kind
}

// OfferAdded result of publishing an offer
type OfferAdded struct {
	Offer   *types.Offer
	Success bool
	Err     error
}

// OfferRemoved result of withdrawing an offer
type OfferRemoved struct {
	Offer   *types.Offer
	Success bool
	Err     error
}

// OffersReceived raw records of an offer book fetch
type OffersReceived struct {
	CurrencyCode string
	Records      map[key.Key]*types.Record
	Success      bool
	Err          error
}

// ArbitratorAdded result of an arbitrator registration
type ArbitratorAdded struct {
	Arbitrator *types.Arbitrator
	Success    bool
	Err        error
}

// ArbitratorsReceived raw records of the arbitrator directory
type ArbitratorsReceived struct {
	// Language filter of the request, empty for all
	Language string
	Records  map[key.Key]*types.Record
	Success  bool
	Err      error
}

// TakeOfferRequested a taker wants one of our offers
type TakeOfferRequested struct {
	Message *types.RequestTakeOffer
	Sender  types.PeerAddress
}

// PingResult liveness of a peer
type PingResult struct {
	// PubKeyHex empty when pinged by address
	PubKeyHex string
	Peer      types.PeerAddress
	Alive     bool
}

// RoutingFailed inbound trade message without a registered protocol
type RoutingFailed struct {
	TradeID string
	Tag     types.Tag
	Sender  types.PeerAddress
	Err     error
}

// DirtyChanged another writer mutated the location
type DirtyChanged struct {
	Location  key.Key
	Timestamp int64
}

// BootstrapStateChanged bootstrap manager transition
type BootstrapStateChanged struct {
	From string
	To   string
	Err  error
}

// ReputationRecorded result of a reputation write
type ReputationRecorded struct {
	Root     key.Key
	Evidence *types.ReputationEvidence
	Success  bool
	Err      error
}

// Kind implements Event
func (*OfferAdded) Kind() Kind { return KindOfferAdded }

// Kind implements Event
func (*OfferRemoved) Kind() Kind { return KindOfferRemoved }

// Kind implements Event
func (*OffersReceived) Kind() Kind { return KindOffersReceived }

// Kind implements Event
func (*ArbitratorAdded) Kind() Kind { return KindArbitratorAdded }

// Kind implements Event
func (*ArbitratorsReceived) Kind() Kind { return KindArbitratorsReceived }

// Kind implements Event
func (*TakeOfferRequested) Kind() Kind { return KindTakeOfferRequested }

// Kind implements Event
func (*PingResult) Kind() Kind { return KindPingResult }

// Kind implements Event
func (*RoutingFailed) Kind() Kind { return KindRoutingFailed }

// Kind implements Event
func (*DirtyChanged) Kind() Kind { return KindDirtyChanged }

// Kind implements Event
func (*BootstrapStateChanged) Kind() Kind { return KindBootstrapStateChanged }

// Kind implements Event
func (*ReputationRecorded) Kind() Kind { return KindReputationRecorded }
