// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	addrkeyTag = "multiaddrs"
	privKeyTag = "privkey"
)

// Identity local key pair, immutable once loaded
type Identity struct {
	PrivKey crypto.PrivKey
	// PubKey marshalled public key
	PubKey []byte
}

// PubKeyHex hex of the marshalled public key
func (i *Identity) PubKeyHex() string {
	return hex.EncodeToString(i.PubKey)
}

// AddrBook identity and known seed addresses
type AddrBook struct {
	mtx      sync.Mutex
	db       *leveldb.DB
	identity *Identity
}

// NewAddrBook open the book at path, an empty path keeps it in memory
func NewAddrBook(path string) (*AddrBook, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open addrbook")
	}
	return &AddrBook{db: db}, nil
}

// Identity load the stored key pair or generate and store a new one
func (a *AddrBook) Identity() (*Identity, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.identity != nil {
		return a.identity, nil
	}
	privHex, err := a.db.Get([]byte(privKeyTag), nil)
	if err == leveldb.ErrNotFound {
		priv, _, err := GenPrivPubkey()
		if err != nil {
			return nil, err
		}
		privHex = []byte(hex.EncodeToString(priv))
		if err = a.db.Put([]byte(privKeyTag), privHex, nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	id, err := parseIdentity(string(privHex))
	if err != nil {
		return nil, err
	}
	a.identity = id
	return id, nil
}

func parseIdentity(privHex string) (*Identity, error) {
	keybytes, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode privkey")
	}
	priv, err := crypto.UnmarshalPrivateKey(keybytes)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal privkey")
	}
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, err
	}
	return &Identity{PrivKey: priv, PubKey: pub}, nil
}

// Addrs saved seed addresses
func (a *AddrBook) Addrs() []string {
	data, err := a.db.Get([]byte(addrkeyTag), nil)
	if err != nil {
		if err != leveldb.ErrNotFound {
			blog.Error("Addrs", "Get addrkeyTag", err)
		}
		return nil
	}
	var addrs []string
	if err = json.Unmarshal(data, &addrs); err != nil {
		blog.Error("Addrs", "Unmarshal err", err)
		return nil
	}
	return addrs
}

// SaveAddrs replace the saved seed addresses
func (a *AddrBook) SaveAddrs(addrs []string) error {
	data, err := json.Marshal(addrs)
	if err != nil {
		return err
	}
	return a.db.Put([]byte(addrkeyTag), data, nil)
}

// Close close the db
func (a *AddrBook) Close() error {
	return a.db.Close()
}

// GenPrivPubkey return key and pubkey in bytes
func GenPrivPubkey() ([]byte, []byte, error) {
	priv, pub, err := crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 2048, rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	privkey, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubkey, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	return privkey, pubkey, nil
}

// GenPubkey hex public key of a hex private key
func GenPubkey(privHex string) (string, error) {
	id, err := parseIdentity(privHex)
	if err != nil {
		return "", err
	}
	return id.PubKeyHex(), nil
}
