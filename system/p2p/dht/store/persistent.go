// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"

	"github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Persistent datastore backed by leveldb
type Persistent struct {
	db *leveldb.DB
}

// NewPersistent open or create the leveldb at path
func NewPersistent(path string) (*Persistent, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: DefaultDataCache * opt.MiB / 2,
		WriteBuffer:        DefaultDataCache * opt.MiB / 4,
	})
	if err != nil {
		return nil, err
	}
	return &Persistent{db: db}, nil
}

// NewPersistentWithDB wrap an opened db
func NewPersistentWithDB(db *leveldb.DB) *Persistent {
	return &Persistent{db: db}
}

// Get implements datastore.Read
func (p *Persistent) Get(_ context.Context, key datastore.Key) (value []byte, err error) {
	v, err := p.db.Get(key.Bytes(), nil)
	if err == leveldb.ErrNotFound {
		return nil, datastore.ErrNotFound
	}
	return v, err
}

// Has implements datastore.Read
func (p *Persistent) Has(_ context.Context, key datastore.Key) (exists bool, err error) {
	return p.db.Has(key.Bytes(), nil)
}

// GetSize implements datastore.Read
func (p *Persistent) GetSize(ctx context.Context, key datastore.Key) (size int, err error) {
	v, err := p.Get(ctx, key)
	if err != nil {
		return -1, err
	}
	return len(v), nil
}

// Query prefix iteration, the remaining query options are applied naively
func (p *Persistent) Query(_ context.Context, q dsq.Query) (dsq.Results, error) {
	var entries []dsq.Entry
	it := p.db.NewIterator(util.BytesPrefix([]byte(q.Prefix)), nil)
	defer it.Release()
	for it.Next() {
		e := dsq.Entry{Key: string(it.Key()), Size: len(it.Value())}
		if !q.KeysOnly {
			e.Value = append([]byte(nil), it.Value()...)
		}
		entries = append(entries, e)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return dsq.NaiveQueryApply(q, dsq.ResultsWithEntries(q, entries)), nil
}

// Put implements datastore.Write
func (p *Persistent) Put(_ context.Context, key datastore.Key, value []byte) error {
	return p.db.Put(key.Bytes(), value, nil)
}

// Delete implements datastore.Write
func (p *Persistent) Delete(_ context.Context, key datastore.Key) error {
	return p.db.Delete(key.Bytes(), nil)
}

// Sync leveldb writes go through the journal
func (p *Persistent) Sync(_ context.Context, _ datastore.Key) error {
	return nil
}

// Close close db
func (p *Persistent) Close() error {
	return p.db.Close()
}

// Batch implements datastore.Batching
func (p *Persistent) Batch(_ context.Context) (datastore.Batch, error) {
	return datastore.NewBasicBatch(p), nil
}
