// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeMessage(t *testing.T) {
	msg := &BankTransferInited{TradeHeader: TradeHeader{ID: "T1"}, DepositTx: "00ff", TakerPaybackAmount: Coin}
	data, err := EncodeTradeMessage("env-1", msg)
	require.Nil(t, err)

	id, got, err := DecodeTradeMessage(data)
	require.Nil(t, err)
	assert.Equal(t, "env-1", id)
	assert.Equal(t, TagBankTransferInited, got.Tag())
	assert.Equal(t, "T1", got.TradeID())
	assert.Equal(t, msg, got)

	_, err = EncodeTradeMessage("x", nil)
	assert.Equal(t, ErrInvalidParam, err)
}

func TestDecodeTradeMessageErrors(t *testing.T) {
	_, _, err := DecodeTradeMessage([]byte("ping"))
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))

	data, err := json.Marshal(&Envelope{ID: "e", Tag: "NoSuchTag", Body: json.RawMessage(`{}`)})
	require.Nil(t, err)
	id, _, err := DecodeTradeMessage(data)
	assert.Equal(t, "e", id)
	assert.Equal(t, ErrUnknownMessage, errors.Cause(err))

	data, err = json.Marshal(&Envelope{ID: "e", Tag: TagPayoutTxPublished, Body: json.RawMessage(`[1]`)})
	require.Nil(t, err)
	_, _, err = DecodeTradeMessage(data)
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))
}

func TestTradeTags(t *testing.T) {
	tags := TradeTags()
	assert.Equal(t, 9, len(tags))
	seen := make(map[Tag]bool)
	for _, tag := range tags {
		assert.False(t, seen[tag])
		seen[tag] = true
		assert.Equal(t, tag, tradeMessageTypes[tag]().Tag())
	}
}

func TestRecord(t *testing.T) {
	rec := &Record{Payload: []byte("p"), Protected: true, OwnerKey: []byte("k")}
	c := rec.Clone()
	c.Payload[0] = 'q'
	assert.Equal(t, []byte("p"), rec.Payload)
	assert.True(t, rec.OwnedBy([]byte("k")))
	assert.False(t, rec.OwnedBy([]byte("x")))
	assert.False(t, (&Record{}).OwnedBy(nil))
	assert.Nil(t, (*Record)(nil).Clone())

	addr := PeerAddress{ID: "id", Addrs: []string{"/ip4/127.0.0.1/tcp/1"}, PubKey: []byte{1, 2}}
	assert.Equal(t, "0102", addr.PubKeyHex())
	assert.Equal(t, "id[/ip4/127.0.0.1/tcp/1]", addr.String())
	assert.True(t, addr.Equal(PeerAddress{ID: "id"}))
	assert.True(t, PeerAddress{}.IsEmpty())
}

func TestOfferCodec(t *testing.T) {
	offer := &Offer{ID: "o1", CurrencyCode: "EUR", Direction: Sell, Amount: Coin}
	data, err := offer.Encode()
	require.Nil(t, err)
	got, err := DecodeOffer(data)
	require.Nil(t, err)
	assert.Equal(t, offer.ID, got.ID)
	assert.Equal(t, Sell, got.Direction)
	_, err = DecodeOffer([]byte("{"))
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))

	arb := &Arbitrator{ID: "a", Languages: []string{"en", "DE"}}
	assert.True(t, arb.Speaks("de"))
	assert.False(t, arb.Speaks("fr"))
}
