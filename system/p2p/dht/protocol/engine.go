// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protocol dht 访问接口, 把网络引擎的阻塞调用包装成在队列上回调的异步结果
package protocol

import (
	"context"

	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
)

// DirectHandler handles a direct payload from sender, the returned bytes are sent back as reply
type DirectHandler func(sender types.PeerAddress, payload []byte) ([]byte, error)

// Engine dht network capability.
// All methods block until the network answers or ctx is done.
type Engine interface {
	// Put upsert rec at (loc, content), authenticated with the node identity
	Put(ctx context.Context, loc, content key.Key, rec *types.Record) error
	// PutDomainProtected claim loc for domainOwner and store rec
	PutDomainProtected(ctx context.Context, loc, content key.Key, rec *types.Record, domainOwner []byte) error
	// Get nil record when absent
	Get(ctx context.Context, loc, content key.Key) (*types.Record, error)
	GetAll(ctx context.Context, loc key.Key) (map[key.Key]*types.Record, error)
	// Remove returns the removed record, nil when absent
	Remove(ctx context.Context, loc, content key.Key) (*types.Record, error)
	// DomainOwner key that protects loc, nil when the location is not claimed
	DomainOwner(ctx context.Context, loc key.Key) ([]byte, error)

	SendDirect(ctx context.Context, to types.PeerAddress, payload []byte) ([]byte, error)
	SetDirectHandler(h DirectHandler)

	// Bootstrap join the network through one of the seeds, returns the seed reached.
	// No seed means searching the local network.
	Bootstrap(ctx context.Context, seeds []string) (types.PeerAddress, error)
	// Discover ask seed for our externally reachable address
	Discover(ctx context.Context, seed types.PeerAddress) (types.PeerAddress, error)

	Self() types.PeerAddress
	// PubKey marshalled public key of the node identity
	PubKey() []byte
	Close() error
}
