// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import "github.com/33cn/tradenet/types"

// BuyerProtocol trade state machine of the offerer acting as buyer
type BuyerProtocol interface {
	TradeID() string
	OnTakeOfferFeePayed(msg *types.TakeOfferFeePayed, sender types.PeerAddress)
	OnRequestOffererPublishDepositTx(msg *types.RequestOffererPublishDepositTx, sender types.PeerAddress)
	OnDepositTxPublished(msg *types.DepositTxPublished, sender types.PeerAddress)
	OnPayoutTxPublished(msg *types.PayoutTxPublished, sender types.PeerAddress)
}

// SellerProtocol trade state machine of the taker acting as seller
type SellerProtocol interface {
	TradeID() string
	OnAcceptTakeOfferRequest(msg *types.AcceptTakeOfferRequest, sender types.PeerAddress)
	OnRejectTakeOfferRequest(msg *types.RejectTakeOfferRequest, sender types.PeerAddress)
	OnRequestTakerDepositPayment(msg *types.RequestTakerDepositPayment, sender types.PeerAddress)
	OnDepositTxPublished(msg *types.DepositTxPublished, sender types.PeerAddress)
	OnBankTransferInited(msg *types.BankTransferInited, sender types.PeerAddress)
}

type role int

const (
	// roleListeners no protocol exists yet, fan out to the take offer listeners
	roleListeners role = iota
	roleBuyer
	roleSeller
	// roleEither exactly one protocol of the trade, the seller one first
	roleEither
)

type route struct {
	role   role
	buyer  func(p BuyerProtocol, msg types.TradeMessage, sender types.PeerAddress)
	seller func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress)
}

// routes tag -> role and entry point, checked against types.TradeTags in init
var routes = map[types.Tag]route{
	types.TagRequestTakeOffer: {role: roleListeners},
	types.TagAcceptTakeOfferRequest: {role: roleSeller, seller: func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnAcceptTakeOfferRequest(msg.(*types.AcceptTakeOfferRequest), sender)
	}},
	types.TagRejectTakeOfferRequest: {role: roleSeller, seller: func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnRejectTakeOfferRequest(msg.(*types.RejectTakeOfferRequest), sender)
	}},
	types.TagRequestTakerDepositPayment: {role: roleSeller, seller: func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnRequestTakerDepositPayment(msg.(*types.RequestTakerDepositPayment), sender)
	}},
	types.TagBankTransferInited: {role: roleSeller, seller: func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnBankTransferInited(msg.(*types.BankTransferInited), sender)
	}},
	types.TagTakeOfferFeePayed: {role: roleBuyer, buyer: func(p BuyerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnTakeOfferFeePayed(msg.(*types.TakeOfferFeePayed), sender)
	}},
	types.TagRequestOffererPublishDepositTx: {role: roleBuyer, buyer: func(p BuyerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnRequestOffererPublishDepositTx(msg.(*types.RequestOffererPublishDepositTx), sender)
	}},
	types.TagPayoutTxPublished: {role: roleBuyer, buyer: func(p BuyerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
		p.OnPayoutTxPublished(msg.(*types.PayoutTxPublished), sender)
	}},
	types.TagDepositTxPublished: {
		role: roleEither,
		buyer: func(p BuyerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
			p.OnDepositTxPublished(msg.(*types.DepositTxPublished), sender)
		},
		seller: func(p SellerProtocol, msg types.TradeMessage, sender types.PeerAddress) {
			p.OnDepositTxPublished(msg.(*types.DepositTxPublished), sender)
		},
	},
}

func checkRoutes() error {
	for _, tag := range types.TradeTags() {
		r, ok := routes[tag]
		if !ok {
			return types.ErrUnknownMessage
		}
		if (r.role == roleBuyer || r.role == roleEither) && r.buyer == nil {
			return types.ErrNoProtocol
		}
		if (r.role == roleSeller || r.role == roleEither) && r.seller == nil {
			return types.ErrNoProtocol
		}
	}
	if len(routes) != len(types.TradeTags()) {
		return types.ErrUnknownMessage
	}
	return nil
}

func init() {
	if err := checkRoutes(); err != nil {
		panic(err)
	}
}
