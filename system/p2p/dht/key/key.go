// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package key dht 地址计算
//
// location key 和 content key 都是 kbucket keyspace 的 sha256 值,
// 记录与节点 id 处于同一个 xor 空间, 可以直接用路由表查找最近的节点.
package key

import (
	"encoding/hex"

	"github.com/33cn/tradenet/types"
	kb "github.com/libp2p/go-libp2p-kbucket"
)

// Size key length in bytes
const Size = 32

// Key location or content key
type Key [Size]byte

// Zero content key of single valued locations
var Zero Key

// Hash key of a namespace or selector, empty input allowed
func Hash(s string) Key {
	var k Key
	copy(k[:], kb.ConvertKey(s))
	return k
}

// HashBytes key of raw bytes, e.g. a public key
func HashBytes(b []byte) Key {
	return Hash(string(b))
}

// Dirty location of the dirty flag guarding loc
func Dirty(loc Key) Key {
	return Hash(loc.String() + types.DirtySuffix)
}

// Arbitrators location of the arbitrator directory
func Arbitrators() Key {
	return Hash(types.ArbitratorsNamespace)
}

// Reputation location of the reputation root of pubHex
func Reputation(pubHex string) Key {
	return Hash(types.ReputationPrefix + pubHex)
}

// Offers location of the offer book of a currency
func Offers(currencyCode string) Key {
	return Hash(currencyCode)
}

// PeerAddress location where the owner of pubHex publishes its address
func PeerAddress(pubHex string) Key {
	return Hash(pubHex)
}

// FromHex parse hex form
func FromHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		return k, types.ErrInvalidParam
	}
	copy(k[:], b)
	return k, nil
}

// FromBytes key from raw bytes
func FromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != Size {
		return k, types.ErrInvalidParam
	}
	copy(k[:], b)
	return k, nil
}

// Bytes raw bytes
func (k Key) Bytes() []byte {
	return k[:]
}

// KadID key in the routing table keyspace
func (k Key) KadID() kb.ID {
	return kb.ID(k[:])
}

// IsZero zero key
func (k Key) IsZero() bool {
	return k == Zero
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText hex encoding
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText hex decoding
func (k *Key) UnmarshalText(b []byte) error {
	v, err := FromHex(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
