// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store dht 记录的本地存储以及保护规则
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/pkg/errors"
)

var slog = log.New("module", "p2p.store")

// RecordStore stores records by (location, content) and enforces ownership.
// Protected records only accept writes and removals from the owner key.
// A protected domain is owned by the key derived from the location itself,
// nobody holds its private key so no peer can claim the location for itself.
type RecordStore struct {
	mu sync.Mutex
	ds ds.Datastore
}

// NewRecordStore wrap a datastore
func NewRecordStore(d ds.Datastore) *RecordStore {
	return &RecordStore{ds: d}
}

func recordKey(loc, content key.Key) ds.Key {
	return ds.NewKey(locationPrefix).ChildString(loc.String()).ChildString(content.String())
}

func locationKey(loc key.Key) ds.Key {
	return ds.NewKey(locationPrefix).ChildString(loc.String())
}

func domainKey(loc key.Key) ds.Key {
	return ds.NewKey(domainPrefix).ChildString(loc.String())
}

// Put store rec, requester is the authenticated public key of the writer
func (s *RecordStore) Put(ctx context.Context, loc, content key.Key, rec *types.Record, requester []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPut(ctx, loc, content, rec, requester); err != nil {
		return err
	}
	return s.put(ctx, loc, content, rec)
}

// CheckPut whether Put would be accepted, nothing is written
func (s *RecordStore) CheckPut(ctx context.Context, loc, content key.Key, rec *types.Record, requester []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkPut(ctx, loc, content, rec, requester)
}

// PutDomainProtected claim the location for domainOwner, then store rec.
// domainOwner must be the location key bytes.
func (s *RecordStore) PutDomainProtected(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner, requester []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, err := s.checkDomain(ctx, loc, content, rec, domainOwner, requester)
	if err != nil {
		return err
	}
	if err = s.put(ctx, loc, content, rec); err != nil {
		return err
	}
	if owner == nil {
		return s.ds.Put(ctx, domainKey(loc), domainOwner)
	}
	return nil
}

// CheckPutDomainProtected whether PutDomainProtected would be accepted, nothing is written
func (s *RecordStore) CheckPutDomainProtected(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner, requester []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.checkDomain(ctx, loc, content, rec, domainOwner, requester)
	return err
}

// checkDomain returns the current domain owner, nil when unclaimed
func (s *RecordStore) checkDomain(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner, requester []byte) ([]byte, error) {
	if len(domainOwner) == 0 {
		return nil, types.ErrInvalidParam
	}
	if !bytes.Equal(domainOwner, loc.Bytes()) {
		slog.Debug("PutDomainProtected", "location", loc, "err", "domain owner not derived from location")
		return nil, types.ErrDomainProtected
	}
	owner, err := s.domainOwner(ctx, loc)
	if err != nil {
		return nil, err
	}
	if owner != nil && !bytes.Equal(owner, domainOwner) {
		slog.Debug("PutDomainProtected", "location", loc, "err", types.ErrDomainProtected)
		return nil, types.ErrDomainProtected
	}
	return owner, s.checkPut(ctx, loc, content, rec, requester)
}

func (s *RecordStore) checkPut(ctx context.Context, loc, content key.Key, rec *types.Record, requester []byte) error {
	if rec == nil {
		return types.ErrInvalidParam
	}
	if rec.Protected && !rec.OwnedBy(requester) {
		return errors.Wrap(types.ErrProtectedRecord, "owner key differs from requester")
	}
	old, err := s.get(ctx, loc, content)
	if err != nil || old == nil {
		return err
	}
	if old.Protected && !old.OwnedBy(requester) {
		return types.ErrProtectedRecord
	}
	if rec.Timestamp != 0 && old.Timestamp > rec.Timestamp {
		// 已有更新的记录
		return types.ErrStaleRecord
	}
	return nil
}

func (s *RecordStore) put(ctx context.Context, loc, content key.Key, rec *types.Record) error {
	stored := rec.Clone()
	if stored.Timestamp == 0 {
		stored.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.ds.Put(ctx, recordKey(loc, content), data)
}

// Get nil record when absent
func (s *RecordStore) Get(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, loc, content)
}

func (s *RecordStore) get(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	data, err := s.ds.Get(ctx, recordKey(loc, content))
	if err == ds.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := &types.Record{}
	if err = json.Unmarshal(data, rec); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return rec, nil
}

// GetAll records of a location by content key
func (s *RecordStore) GetAll(ctx context.Context, loc key.Key) (map[key.Key]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.ds.Query(ctx, dsq.Query{Prefix: locationKey(loc).String()})
	if err != nil {
		return nil, err
	}
	defer res.Close()
	records := make(map[key.Key]*types.Record)
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		content, err := key.FromHex(ds.RawKey(r.Key).BaseNamespace())
		if err != nil {
			slog.Error("GetAll", "key", r.Key, "err", err)
			continue
		}
		rec := &types.Record{}
		if err = json.Unmarshal(r.Value, rec); err != nil {
			slog.Error("GetAll", "key", r.Key, "err", err)
			continue
		}
		records[content] = rec
	}
	return records, nil
}

// Remove delete a record, returns the deleted one or nil when absent
func (s *RecordStore) Remove(ctx context.Context, loc, content key.Key, requester []byte) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.checkRemove(ctx, loc, content, requester)
	if err != nil || old == nil {
		return nil, err
	}
	if err = s.ds.Delete(ctx, recordKey(loc, content)); err != nil {
		return nil, err
	}
	return old, nil
}

// CheckRemove whether Remove would be accepted, nothing is deleted
func (s *RecordStore) CheckRemove(ctx context.Context, loc, content key.Key, requester []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.checkRemove(ctx, loc, content, requester)
	return err
}

func (s *RecordStore) checkRemove(ctx context.Context, loc, content key.Key, requester []byte) (*types.Record, error) {
	old, err := s.get(ctx, loc, content)
	if err != nil || old == nil {
		return nil, err
	}
	if old.Protected && !old.OwnedBy(requester) {
		return nil, types.ErrProtectedRecord
	}
	return old, nil
}

// DomainOwner owner key of a protected location, nil when unclaimed
func (s *RecordStore) DomainOwner(ctx context.Context, loc key.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domainOwner(ctx, loc)
}

func (s *RecordStore) domainOwner(ctx context.Context, loc key.Key) ([]byte, error) {
	owner, err := s.ds.Get(ctx, domainKey(loc))
	if err == ds.ErrNotFound {
		return nil, nil
	}
	return owner, err
}

// Close close the underlying datastore
func (s *RecordStore) Close() error {
	return s.ds.Close()
}

// Newest pick the record with the highest timestamp
func Newest(records ...*types.Record) *types.Record {
	var newest *types.Record
	for _, r := range records {
		if r != nil && (newest == nil || r.Timestamp > newest.Timestamp) {
			newest = r
		}
	}
	return newest
}
