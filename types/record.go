// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Record value stored at (location, content) of the dht
type Record struct {
	Payload []byte `json:"payload,omitempty"`
	// Protected 受保护的记录只能被OwnerKey的持有者覆盖或删除
	Protected bool   `json:"protected,omitempty"`
	OwnerKey  []byte `json:"ownerKey,omitempty"`
	// Timestamp unix ms of the write, newest replica wins
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Clone deep copy
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	c.OwnerKey = append([]byte(nil), r.OwnerKey...)
	return &c
}

// OwnedBy check owner key
func (r *Record) OwnedBy(pub []byte) bool {
	return len(r.OwnerKey) > 0 && bytes.Equal(r.OwnerKey, pub)
}

// PeerAddress network address of a peer
type PeerAddress struct {
	// ID engine specific peer id
	ID    string   `json:"id"`
	Addrs []string `json:"addrs,omitempty"`
	// PubKey marshalled public key of the peer identity
	PubKey []byte `json:"pubKey,omitempty"`
}

// Equal compares peer ids only
func (p PeerAddress) Equal(other PeerAddress) bool {
	return p.ID == other.ID
}

// IsEmpty no id
func (p PeerAddress) IsEmpty() bool {
	return p.ID == ""
}

// PubKeyHex hex of the identity key
func (p PeerAddress) PubKeyHex() string {
	return hex.EncodeToString(p.PubKey)
}

func (p PeerAddress) String() string {
	if len(p.Addrs) == 0 {
		return p.ID
	}
	return fmt.Sprintf("%s[%s]", p.ID, strings.Join(p.Addrs, ","))
}
