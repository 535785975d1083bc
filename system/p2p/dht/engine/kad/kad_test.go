// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kad

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/system/p2p/dht/key"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLogLevel("error")
}

func newKadNode(t *testing.T) *Node {
	return newKadNodeWith(t, 2)
}

func newKadNodeWith(t *testing.T, replication int) *Node {
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 2048, rand.Reader)
	require.Nil(t, err)
	b := NewBinder(Config{ProtocolPrefix: "/tradenet-test", Replication: replication, ListenIP: "127.0.0.1"})
	e, err := b.Bind(context.Background(), priv, 0)
	require.Nil(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e.(*Node)
}

func seedAddr(n *Node) string {
	return n.host.Addrs()[0].String() + "/p2p/" + n.host.ID().String()
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBind(t *testing.T) {
	b := NewBinder(Config{})
	assert.Equal(t, DefaultReplication, b.cfg.Replication)
	assert.Equal(t, "/"+types.AppName, b.cfg.ProtocolPrefix)
	_, err := b.Bind(context.Background(), nil, 0)
	assert.Equal(t, types.ErrInvalidParam, err)

	n := newKadNode(t)
	assert.True(t, n.Port() > 0)
	assert.Equal(t, n.host.ID().String(), n.Self().ID)
	assert.NotEmpty(t, n.Self().Addrs)

	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 2048, rand.Reader)
	require.Nil(t, err)
	_, err = NewBinder(Config{ListenIP: "127.0.0.1"}).Bind(context.Background(), priv, n.Port())
	assert.NotNil(t, err)
	assert.True(t, isAddrInUse(errors.New("failed to listen on any addresses: [listen tcp4 127.0.0.1:5000: bind: address already in use]")))
	assert.False(t, isAddrInUse(errors.New("dial backoff")))
}

func TestBootstrapDiscover(t *testing.T) {
	a, b := newKadNode(t), newKadNode(t)
	ctx := testCtx(t)
	_, err := b.Bootstrap(ctx, nil)
	assert.Equal(t, types.ErrNoSeed, err)
	_, err = b.Bootstrap(ctx, []string{"not a multiaddr"})
	assert.Equal(t, types.ErrNoSeed, err)

	seed, err := b.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)
	assert.Equal(t, a.Self().ID, seed.ID)

	self, err := b.Discover(ctx, seed)
	require.Nil(t, err)
	assert.Equal(t, b.Self().ID, self.ID)
	// address seen by the seed, with the listen port instead of the outbound one
	require.NotEmpty(t, self.Addrs)
	assert.Equal(t, fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", b.Port()), self.Addrs[0])
	assert.Equal(t, self.Addrs, b.Self().Addrs)

	_, err = b.Discover(ctx, types.PeerAddress{ID: "bad"})
	assert.Equal(t, types.ErrPeerUnreachable, err)
}

func TestExternalAddr(t *testing.T) {
	m, err := externalAddr("/ip4/150.109.6.160/tcp/40123", 13802)
	require.Nil(t, err)
	assert.Equal(t, "/ip4/150.109.6.160/tcp/13802", m.String())
	m, err = externalAddr("/ip6/::1/tcp/40123", 13802)
	require.Nil(t, err)
	assert.Equal(t, "/ip6/::1/tcp/13802", m.String())
	_, err = externalAddr("/dns4/example.com/tcp/1", 13802)
	assert.Equal(t, types.ErrInvalidParam, err)
	_, err = externalAddr("garbage", 13802)
	assert.NotNil(t, err)
}

func TestStoreReplicas(t *testing.T) {
	a, b := newKadNode(t), newKadNode(t)
	ctx := testCtx(t)
	_, err := b.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)

	loc, content := key.Hash("loc"), key.Hash("content")
	rec := &types.Record{Payload: []byte("a"), Protected: true, OwnerKey: a.PubKey()}
	require.Nil(t, a.Put(ctx, loc, content, rec))

	require.Eventually(t, func() bool {
		got, err := b.Get(ctx, loc, content)
		return err == nil && got != nil && string(got.Payload) == "a"
	}, 5*time.Second, 50*time.Millisecond)

	all, err := b.GetAll(ctx, loc)
	require.Nil(t, err)
	assert.Equal(t, 1, len(all))
	assert.Equal(t, []byte("a"), all[content].Payload)

	// 记录由 a 保护, b 无法覆盖或删除
	err = b.Put(ctx, loc, content, &types.Record{Payload: []byte("b"), Protected: true, OwnerKey: b.PubKey()})
	assert.Equal(t, types.ErrProtectedRecord, errors.Cause(err))
	_, err = b.Remove(ctx, loc, content)
	assert.Equal(t, types.ErrProtectedRecord, errors.Cause(err))

	removed, err := a.Remove(ctx, loc, content)
	require.Nil(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, []byte("a"), removed.Payload)
	got, err := a.Get(ctx, loc, content)
	require.Nil(t, err)
	assert.Nil(t, got)

	// stale write
	require.Nil(t, a.Put(ctx, loc, key.Zero, &types.Record{Payload: []byte("new"), Timestamp: 200}))
	err = b.Put(ctx, loc, key.Zero, &types.Record{Payload: []byte("old"), Timestamp: 100})
	assert.Equal(t, types.ErrStaleRecord, errors.Cause(err))
}

func TestDomainOwner(t *testing.T) {
	a, b := newKadNode(t), newKadNode(t)
	ctx := testCtx(t)
	_, err := b.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)

	root := key.Reputation("a")
	owner, err := b.DomainOwner(ctx, root)
	require.Nil(t, err)
	assert.Nil(t, owner)

	// 只能用位置派生的 key 保护
	err = b.PutDomainProtected(ctx, root, key.HashBytes(b.PubKey()), &types.Record{}, b.PubKey())
	assert.Equal(t, types.ErrDomainProtected, errors.Cause(err))

	rec := &types.Record{Protected: true, OwnerKey: a.PubKey()}
	require.Nil(t, a.PutDomainProtected(ctx, root, key.HashBytes(a.PubKey()), rec, root.Bytes()))
	owner, err = b.DomainOwner(ctx, root)
	require.Nil(t, err)
	assert.Equal(t, root.Bytes(), owner)
}

// rejected modifications must not stay on any node, including the writer
func TestRejectedWriteNotApplied(t *testing.T) {
	a, b, c := newKadNodeWith(t, 1), newKadNodeWith(t, 1), newKadNodeWith(t, 1)
	ctx := testCtx(t)
	_, err := b.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)
	_, err = c.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)

	loc, content := key.Hash("owned"), key.Hash("content")
	require.Nil(t, a.Put(ctx, loc, content, &types.Record{Payload: []byte("a"), Protected: true, OwnerKey: a.PubKey()}))

	err = c.Put(ctx, loc, content, &types.Record{Payload: []byte("c"), Protected: true, OwnerKey: c.PubKey()})
	assert.Equal(t, types.ErrProtectedRecord, errors.Cause(err))
	err = c.Put(ctx, loc, content, &types.Record{Payload: []byte("c")})
	assert.Equal(t, types.ErrProtectedRecord, errors.Cause(err))
	_, err = c.Remove(ctx, loc, content)
	assert.Equal(t, types.ErrProtectedRecord, errors.Cause(err))

	for _, n := range []*Node{a, b, c} {
		rec, err := n.store.Get(ctx, loc, content)
		require.Nil(t, err)
		if rec != nil {
			assert.Equal(t, []byte("a"), rec.Payload)
		}
	}
	rec, err := a.store.Get(ctx, loc, content)
	require.Nil(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []byte("a"), rec.Payload)

	got, err := c.Get(ctx, loc, content)
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("a"), got.Payload)
}

func TestSendDirect(t *testing.T) {
	a, b := newKadNode(t), newKadNode(t)
	ctx := testCtx(t)
	_, err := b.Bootstrap(ctx, []string{seedAddr(a)})
	require.Nil(t, err)

	_, err = a.SendDirect(ctx, b.Self(), []byte("hi"))
	assert.Equal(t, types.ErrPeerUnreachable, errors.Cause(err))

	var from types.PeerAddress
	b.SetDirectHandler(func(sender types.PeerAddress, payload []byte) ([]byte, error) {
		from = sender
		if string(payload) == "fail" {
			return nil, errors.Wrap(types.ErrNoProtocol, "T1")
		}
		return append([]byte("re:"), payload...), nil
	})
	reply, err := a.SendDirect(ctx, b.Self(), []byte("hi"))
	require.Nil(t, err)
	assert.Equal(t, []byte("re:hi"), reply)
	assert.Equal(t, a.Self().ID, from.ID)
	assert.Equal(t, a.PubKey(), from.PubKey)

	_, err = a.SendDirect(ctx, b.Self(), []byte("fail"))
	assert.Equal(t, types.ErrNoProtocol, err)
}

func TestClose(t *testing.T) {
	n := newKadNode(t)
	require.Nil(t, n.Close())
	require.Nil(t, n.Close())
	err := n.Put(context.Background(), key.Hash("l"), key.Zero, &types.Record{})
	assert.Equal(t, types.ErrIsClosed, err)
	_, err = n.SendDirect(context.Background(), n.Self(), nil)
	assert.Equal(t, types.ErrIsClosed, err)
}
