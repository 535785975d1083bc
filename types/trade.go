// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Tag trade message tag
type Tag string

// trade message tags
const (
	TagRequestTakeOffer               Tag = "RequestTakeOffer"
	TagAcceptTakeOfferRequest         Tag = "AcceptTakeOfferRequest"
	TagRejectTakeOfferRequest         Tag = "RejectTakeOfferRequest"
	TagTakeOfferFeePayed              Tag = "TakeOfferFeePayed"
	TagRequestTakerDepositPayment     Tag = "RequestTakerDepositPayment"
	TagRequestOffererPublishDepositTx Tag = "RequestOffererPublishDepositTx"
	TagDepositTxPublished             Tag = "DepositTxPublished"
	TagBankTransferInited             Tag = "BankTransferInited"
	TagPayoutTxPublished              Tag = "PayoutTxPublished"
)

// fixed payloads of direct messages
var (
	PingPayload = []byte("ping")
	PongPayload = []byte("pong")
	AckPayload  = []byte("ack")
)

// TradeMessage closed set of messages exchanged during a trade negotiation.
// Only the types declared in this file implement it.
type TradeMessage interface {
	TradeID() string
	Tag() Tag
	sealed()
}

// TradeHeader common part of every trade message
type TradeHeader struct {
	ID string `json:"tradeId"`
}

// TradeID trade identifier, equal to the offer id
func (h TradeHeader) TradeID() string { return h.ID }

func (TradeHeader) sealed() {}

// RequestTakeOffer sent by the taker to the offerer
type RequestTakeOffer struct {
	TradeHeader
	TakerPubKey string `json:"takerPubKey"`
	Amount      int64  `json:"amount"`
}

// AcceptTakeOfferRequest offerer accepts the take request
type AcceptTakeOfferRequest struct {
	TradeHeader
}

// RejectTakeOfferRequest offerer rejects the take request
type RejectTakeOfferRequest struct {
	TradeHeader
	Reason string `json:"reason,omitempty"`
}

// TakeOfferFeePayed taker paid the offer fee
type TakeOfferFeePayed struct {
	TradeHeader
	TakeOfferFeeTxID string `json:"takeOfferFeeTxId"`
	TradeAmount      int64  `json:"tradeAmount"`
	TakerPubKey      string `json:"takerPubKey"`
}

// RequestTakerDepositPayment offerer asks the taker to pay into the deposit tx
type RequestTakerDepositPayment struct {
	TradeHeader
	BankAccount              []byte `json:"bankAccount,omitempty"`
	AccountID                string `json:"accountId"`
	OffererPubKey            string `json:"offererPubKey"`
	PreparedOffererDepositTx string `json:"preparedOffererDepositTx"`
	OffererTxOutIndex        int64  `json:"offererTxOutIndex"`
}

// RequestOffererPublishDepositTx taker hands the signed deposit tx back
type RequestOffererPublishDepositTx struct {
	TradeHeader
	BankAccount          []byte `json:"bankAccount,omitempty"`
	AccountID            string `json:"accountId"`
	TakerMultiSigPubKey  string `json:"takerMultiSigPubKey"`
	SignedTakerDepositTx string `json:"signedTakerDepositTx"`
	TakerPayoutAddress   string `json:"takerPayoutAddress"`
	TakerTxOutIndex      int64  `json:"takerTxOutIndex"`
}

// DepositTxPublished deposit tx is in the network
type DepositTxPublished struct {
	TradeHeader
	DepositTx string `json:"depositTx"`
}

// BankTransferInited buyer started the fiat transfer
type BankTransferInited struct {
	TradeHeader
	DepositTx            string `json:"depositTx"`
	OffererSignature     []byte `json:"offererSignature,omitempty"`
	OffererPaybackAmount int64  `json:"offererPaybackAmount"`
	TakerPaybackAmount   int64  `json:"takerPaybackAmount"`
	OffererPayoutAddress string `json:"offererPayoutAddress"`
}

// PayoutTxPublished payout tx is in the network
type PayoutTxPublished struct {
	TradeHeader
	PayoutTx string `json:"payoutTx"`
}

// Tag implements TradeMessage
func (*RequestTakeOffer) Tag() Tag { return TagRequestTakeOffer }

// Tag implements TradeMessage
func (*AcceptTakeOfferRequest) Tag() Tag { return TagAcceptTakeOfferRequest }

// Tag implements TradeMessage
func (*RejectTakeOfferRequest) Tag() Tag { return TagRejectTakeOfferRequest }

// Tag implements TradeMessage
func (*TakeOfferFeePayed) Tag() Tag { return TagTakeOfferFeePayed }

// Tag implements TradeMessage
func (*RequestTakerDepositPayment) Tag() Tag { return TagRequestTakerDepositPayment }

// Tag implements TradeMessage
func (*RequestOffererPublishDepositTx) Tag() Tag { return TagRequestOffererPublishDepositTx }

// Tag implements TradeMessage
func (*DepositTxPublished) Tag() Tag { return TagDepositTxPublished }

// Tag implements TradeMessage
func (*BankTransferInited) Tag() Tag { return TagBankTransferInited }

// Tag implements TradeMessage
func (*PayoutTxPublished) Tag() Tag { return TagPayoutTxPublished }

var tradeMessageTypes = map[Tag]func() TradeMessage{
	TagRequestTakeOffer:               func() TradeMessage { return &RequestTakeOffer{} },
	TagAcceptTakeOfferRequest:         func() TradeMessage { return &AcceptTakeOfferRequest{} },
	TagRejectTakeOfferRequest:         func() TradeMessage { return &RejectTakeOfferRequest{} },
	TagTakeOfferFeePayed:              func() TradeMessage { return &TakeOfferFeePayed{} },
	TagRequestTakerDepositPayment:     func() TradeMessage { return &RequestTakerDepositPayment{} },
	TagRequestOffererPublishDepositTx: func() TradeMessage { return &RequestOffererPublishDepositTx{} },
	TagDepositTxPublished:             func() TradeMessage { return &DepositTxPublished{} },
	TagBankTransferInited:             func() TradeMessage { return &BankTransferInited{} },
	TagPayoutTxPublished:              func() TradeMessage { return &PayoutTxPublished{} },
}

// TradeTags all known trade message tags
func TradeTags() []Tag {
	tags := make([]Tag, 0, len(tradeMessageTypes))
	for tag := range tradeMessageTypes {
		tags = append(tags, tag)
	}
	return tags
}

// Envelope wire form of a direct trade message
type Envelope struct {
	ID   string          `json:"id"`
	Tag  Tag             `json:"tag"`
	Body json.RawMessage `json:"body"`
}

// EncodeTradeMessage wrap msg into an envelope
func EncodeTradeMessage(id string, msg TradeMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrInvalidParam
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "EncodeTradeMessage")
	}
	return json.Marshal(&Envelope{ID: id, Tag: msg.Tag(), Body: body})
}

// DecodeTradeMessage unwrap an envelope, returning the envelope id and the message
func DecodeTradeMessage(data []byte) (string, TradeMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	newMsg, ok := tradeMessageTypes[env.Tag]
	if !ok {
		return env.ID, nil, errors.Wrapf(ErrUnknownMessage, "tag %q", env.Tag)
	}
	msg := newMsg()
	if err := json.Unmarshal(env.Body, msg); err != nil {
		return env.ID, nil, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	return env.ID, msg, nil
}
