// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"encoding/json"
	"strings"
)

// Direction of an offer seen from the offerer
type Direction string

// offer direction
const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Offer trade offer published in the offer book of its currency
type Offer struct {
	ID           string    `json:"id"`
	CurrencyCode string    `json:"currencyCode"`
	Direction    Direction `json:"direction"`
	// Price fiat price with 8 decimals
	Price int64 `json:"price"`
	// Amount and MinAmount in satoshi
	Amount    int64 `json:"amount"`
	MinAmount int64 `json:"minAmount"`
	// OffererPubKey hex of the offerer's message public key
	OffererPubKey     string   `json:"offererPubKey"`
	BankAccountType   string   `json:"bankAccountType,omitempty"`
	AcceptedCountries []string `json:"acceptedCountries,omitempty"`
	AcceptedLanguages []string `json:"acceptedLanguages,omitempty"`
	ArbitratorIDs     []string `json:"arbitratorIds,omitempty"`
	CreationTime      int64    `json:"creationTime"`
}

// Encode marshal offer payload
func (o *Offer) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// DecodeOffer unmarshal offer payload
func DecodeOffer(b []byte) (*Offer, error) {
	o := &Offer{}
	if err := json.Unmarshal(b, o); err != nil {
		return nil, ErrInvalidMessage
	}
	return o, nil
}

// Arbitrator arbitrator registered in the directory
type Arbitrator struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PubKey    string   `json:"pubKey"`
	Languages []string `json:"languages,omitempty"`
	// Fee per trade in satoshi
	Fee        int64  `json:"fee"`
	WebURL     string `json:"webUrl,omitempty"`
	RegisterAt int64  `json:"registerAt"`
}

// Encode marshal arbitrator payload
func (a *Arbitrator) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// Speaks language check, case insensitive
func (a *Arbitrator) Speaks(lang string) bool {
	for _, l := range a.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// DecodeArbitrator unmarshal arbitrator payload
func DecodeArbitrator(b []byte) (*Arbitrator, error) {
	a := &Arbitrator{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, ErrInvalidMessage
	}
	return a, nil
}

// evidence kinds
const (
	EvidenceTrade      = "trade"
	EvidenceOfferFee   = "offerFee"
	EvidenceRootMarker = "root"
)

// ReputationEvidence one reporter's entry under a reputation root
type ReputationEvidence struct {
	Kind string `json:"kind"`
	// Reporter hex public key of the writer
	Reporter string `json:"reporter"`
	TxID     string `json:"txId,omitempty"`
	// FeePubKey hex of the key which paid the offer fee
	FeePubKey string `json:"feePubKey,omitempty"`
	Count     int64  `json:"count,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Signature []byte `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Encode marshal evidence payload
func (e *ReputationEvidence) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvidence unmarshal evidence payload
func DecodeEvidence(b []byte) (*ReputationEvidence, error) {
	e := &ReputationEvidence{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, ErrInvalidMessage
	}
	return e, nil
}
