// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kad

import (
	"context"
	"sync"
	"time"

	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/system/p2p/dht/store"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	p2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// store protocol operations
const (
	opPut       = "put"
	opPutDomain = "putDomain"
	opGet       = "get"
	opGetAll    = "getAll"
	opRemove    = "remove"
	opDomain    = "domainOwner"
)

type storeRequest struct {
	Op          string        `json:"op"`
	Location    key.Key       `json:"location"`
	Content     key.Key       `json:"content"`
	Record      *types.Record `json:"record,omitempty"`
	DomainOwner []byte        `json:"domainOwner,omitempty"`
	// CheckOnly 只校验写入或删除是否会被接受, 不修改存储
	CheckOnly bool `json:"checkOnly,omitempty"`
}

type storeResponse struct {
	Record      *types.Record             `json:"record,omitempty"`
	Records     map[key.Key]*types.Record `json:"records,omitempty"`
	DomainOwner []byte                    `json:"domainOwner,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// authoritative rejections, a replica returning one of these fails the write
func isRejection(err error) bool {
	cause := errors.Cause(err)
	return cause == types.ErrProtectedRecord || cause == types.ErrDomainProtected || cause == types.ErrStaleRecord
}

// apply a request to the local store on behalf of requester
func (n *Node) apply(ctx context.Context, req *storeRequest, requester []byte) *storeResponse {
	resp := &storeResponse{}
	var err error
	switch {
	case req.CheckOnly:
		err = n.checkRequest(ctx, req, requester)
	case req.Op == opPut:
		err = n.store.Put(ctx, req.Location, req.Content, req.Record, requester)
	case req.Op == opPutDomain:
		err = n.store.PutDomainProtected(ctx, req.Location, req.Content, req.Record, req.DomainOwner, requester)
	case req.Op == opGet:
		resp.Record, err = n.store.Get(ctx, req.Location, req.Content)
	case req.Op == opGetAll:
		resp.Records, err = n.store.GetAll(ctx, req.Location)
	case req.Op == opRemove:
		resp.Record, err = n.store.Remove(ctx, req.Location, req.Content, requester)
	case req.Op == opDomain:
		resp.DomainOwner, err = n.store.DomainOwner(ctx, req.Location)
	default:
		err = types.ErrUnknownMessage
	}
	resp.Error = errorString(err)
	return resp
}

func (n *Node) checkRequest(ctx context.Context, req *storeRequest, requester []byte) error {
	switch req.Op {
	case opPut:
		return n.store.CheckPut(ctx, req.Location, req.Content, req.Record, requester)
	case opPutDomain:
		return n.store.CheckPutDomainProtected(ctx, req.Location, req.Content, req.Record, req.DomainOwner, requester)
	case opRemove:
		return n.store.CheckRemove(ctx, req.Location, req.Content, requester)
	}
	return types.ErrUnknownMessage
}

func (n *Node) handleStore(stream network.Stream) {
	var req storeRequest
	if err := ReadStream(&req, stream); err != nil {
		return
	}
	requester, err := crypto.MarshalPublicKey(stream.Conn().RemotePublicKey())
	if err != nil {
		klog.Error("handleStore", "pid", stream.Conn().RemotePeer(), "remote public key", err)
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, time.Minute)
	defer cancel()
	resp := n.apply(ctx, &req, requester)
	if err := WriteStream(resp, stream); err != nil {
		klog.Error("handleStore", "write stream error", err)
	}
}

// request one round trip on a new stream
func (n *Node) request(ctx context.Context, pid peer.ID, id p2pprotocol.ID, req, resp interface{}) error {
	stream, err := n.host.NewStream(ctx, pid, id)
	if err != nil {
		if ctx.Err() != nil {
			return types.ErrTimeout
		}
		return errors.Wrap(types.ErrPeerUnreachable, err.Error())
	}
	defer CloseStream(stream)
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}
	if err = WriteStream(req, stream); err != nil {
		_ = stream.Reset()
		return errors.Wrap(types.ErrPeerUnreachable, err.Error())
	}
	_ = stream.CloseWrite()
	if err = ReadStream(resp, stream); err != nil {
		_ = stream.Reset()
		if ctx.Err() != nil {
			return types.ErrTimeout
		}
		return errors.Wrap(types.ErrPeerUnreachable, err.Error())
	}
	return nil
}

// replicas closest peers of loc, the local node is not included
func (n *Node) replicas(ctx context.Context, loc key.Key) []peer.ID {
	peers, err := n.kdht.GetClosestPeers(ctx, string(loc.Bytes()))
	if err != nil || len(peers) == 0 {
		// 路由表为空或者查询失败时退回到已连接的节点
		klog.Debug("replicas", "location", loc, "err", err)
		peers = n.host.Network().Peers()
	}
	out := make([]peer.ID, 0, n.replication)
	for _, pid := range peers {
		if pid == n.host.ID() {
			continue
		}
		out = append(out, pid)
		if len(out) == n.replication {
			break
		}
	}
	return out
}

// fanout run req on every peer, callback runs under a lock
func (n *Node) fanout(ctx context.Context, peers []peer.ID, req *storeRequest, fn func(pid peer.ID, resp *storeResponse) error) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, pid := range peers {
		pid := pid
		g.Go(func() error {
			resp := &storeResponse{}
			if err := n.request(gctx, pid, n.storeID, req, resp); err != nil {
				klog.Debug("fanout", "op", req.Op, "pid", pid, "err", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			return fn(pid, resp)
		})
	}
	return g.Wait()
}

// verdict of a replica on a modification, only rejections fail it
func verdict(op string) func(pid peer.ID, resp *storeResponse) error {
	return func(pid peer.ID, resp *storeResponse) error {
		err := parseError(resp.Error)
		if isRejection(err) {
			return err
		}
		if err != nil {
			klog.Error("write", "op", op, "pid", pid, "err", err)
		}
		return nil
	}
}

// prepare 在本地和副本上校验修改, 返回校验通过的副本
func (n *Node) prepare(ctx context.Context, req *storeRequest) ([]peer.ID, error) {
	check := *req
	check.CheckOnly = true
	if err := parseError(n.apply(ctx, &check, n.pub).Error); err != nil {
		return nil, err
	}
	peers := n.replicas(ctx, req.Location)
	if err := n.fanout(ctx, peers, &check, verdict(req.Op)); err != nil {
		return nil, err
	}
	return peers, nil
}

func (n *Node) write(ctx context.Context, req *storeRequest) error {
	if req.Record != nil {
		rec := req.Record.Clone()
		if rec.Timestamp == 0 {
			rec.Timestamp = time.Now().UnixMilli()
		}
		req.Record = rec
	}
	peers, err := n.prepare(ctx, req)
	if err != nil {
		return err
	}
	if err = parseError(n.apply(ctx, req, n.pub).Error); err != nil {
		return err
	}
	return n.fanout(ctx, peers, req, verdict(req.Op))
}

// Put implements protocol.Engine
func (n *Node) Put(ctx context.Context, loc, content key.Key, rec *types.Record) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	if rec == nil {
		return types.ErrInvalidParam
	}
	return n.write(ctx, &storeRequest{Op: opPut, Location: loc, Content: content, Record: rec})
}

// PutDomainProtected implements protocol.Engine
func (n *Node) PutDomainProtected(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner []byte) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	if rec == nil || len(domainOwner) == 0 {
		return types.ErrInvalidParam
	}
	return n.write(ctx, &storeRequest{Op: opPutDomain, Location: loc, Content: content, Record: rec, DomainOwner: domainOwner})
}

// Get implements protocol.Engine, the newest replica wins
func (n *Node) Get(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	req := &storeRequest{Op: opGet, Location: loc, Content: content}
	local := n.apply(ctx, req, n.pub)
	if err := parseError(local.Error); err != nil {
		return nil, err
	}
	newest := local.Record
	err := n.fanout(ctx, n.replicas(ctx, loc), req, func(_ peer.ID, resp *storeResponse) error {
		if resp.Error == "" {
			newest = store.Newest(newest, resp.Record)
		}
		return nil
	})
	return newest, err
}

// GetAll implements protocol.Engine, replicas are merged per content key
func (n *Node) GetAll(ctx context.Context, loc key.Key) (map[key.Key]*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	req := &storeRequest{Op: opGetAll, Location: loc}
	local := n.apply(ctx, req, n.pub)
	if err := parseError(local.Error); err != nil {
		return nil, err
	}
	records := make(map[key.Key]*types.Record, len(local.Records))
	merge := func(in map[key.Key]*types.Record) {
		for k, rec := range in {
			records[k] = store.Newest(records[k], rec)
		}
	}
	merge(local.Records)
	err := n.fanout(ctx, n.replicas(ctx, loc), req, func(_ peer.ID, resp *storeResponse) error {
		if resp.Error == "" {
			merge(resp.Records)
		}
		return nil
	})
	return records, err
}

// Remove implements protocol.Engine
func (n *Node) Remove(ctx context.Context, loc, content key.Key) (*types.Record, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	req := &storeRequest{Op: opRemove, Location: loc, Content: content}
	peers, err := n.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	local := n.apply(ctx, req, n.pub)
	if err = parseError(local.Error); err != nil {
		return nil, err
	}
	removed := local.Record
	check := verdict(req.Op)
	err = n.fanout(ctx, peers, req, func(pid peer.ID, resp *storeResponse) error {
		if err := check(pid, resp); err != nil {
			return err
		}
		if resp.Error == "" {
			removed = store.Newest(removed, resp.Record)
		}
		return nil
	})
	return removed, err
}

// DomainOwner implements protocol.Engine, the local claim wins over the replicas
func (n *Node) DomainOwner(ctx context.Context, loc key.Key) ([]byte, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	req := &storeRequest{Op: opDomain, Location: loc}
	local := n.apply(ctx, req, n.pub)
	if err := parseError(local.Error); err != nil {
		return nil, err
	}
	owner := local.DomainOwner
	err := n.fanout(ctx, n.replicas(ctx, loc), req, func(_ peer.ID, resp *storeResponse) error {
		if owner == nil && resp.Error == "" {
			owner = resp.DomainOwner
		}
		return nil
	})
	return owner, err
}
