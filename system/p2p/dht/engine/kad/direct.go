// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kad

import (
	"context"
	"fmt"
	"time"

	"github.com/33cn/tradenet/system/p2p/dht/protocol"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
)

type directRequest struct {
	Payload []byte `json:"payload"`
}

type directResponse struct {
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SetDirectHandler implements protocol.Engine, without a handler the direct protocol is not served
func (n *Node) SetDirectHandler(h protocol.DirectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
	if h == nil {
		n.host.RemoveStreamHandler(n.directID)
		return
	}
	n.host.SetStreamHandler(n.directID, HandlerWithClose(n.handleDirect))
}

func (n *Node) directHandler() protocol.DirectHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handler
}

func (n *Node) handleDirect(stream network.Stream) {
	var req directRequest
	if err := ReadStream(&req, stream); err != nil {
		return
	}
	h := n.directHandler()
	if h == nil {
		_ = stream.Reset()
		return
	}
	conn := stream.Conn()
	sender := types.PeerAddress{ID: conn.RemotePeer().String(), Addrs: []string{conn.RemoteMultiaddr().String()}}
	if pub, err := crypto.MarshalPublicKey(conn.RemotePublicKey()); err == nil {
		sender.PubKey = pub
	}
	payload, err := h(sender, req.Payload)
	if werr := WriteStream(&directResponse{Payload: payload, Error: errorString(err)}, stream); werr != nil {
		klog.Error("handleDirect", "write stream error", werr)
	}
}

// addPeer remember the addresses of a peer address, returns its id
func (n *Node) addPeer(addr types.PeerAddress, ttl time.Duration) (peer.ID, error) {
	pid, err := peer.Decode(addr.ID)
	if err != nil {
		return "", types.ErrPeerUnreachable
	}
	addrs := make([]ma.Multiaddr, 0, len(addr.Addrs))
	for _, s := range addr.Addrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			continue
		}
		addrs = append(addrs, m)
	}
	if len(addrs) != 0 && pid != n.host.ID() {
		n.host.Peerstore().AddAddrs(pid, addrs, ttl)
	}
	return pid, nil
}

// SendDirect implements protocol.Engine
func (n *Node) SendDirect(ctx context.Context, to types.PeerAddress, payload []byte) ([]byte, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	pid, err := n.addPeer(to, peerstore.TempAddrTTL)
	if err != nil {
		return nil, err
	}
	if pid == n.host.ID() {
		// 发给自己的消息不经过网络
		h := n.directHandler()
		if h == nil {
			return nil, types.ErrPeerUnreachable
		}
		return h(n.Self(), payload)
	}
	resp := &directResponse{}
	if err = n.request(ctx, pid, n.directID, &directRequest{Payload: payload}, resp); err != nil {
		return nil, err
	}
	if err = parseError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// Bootstrap implements protocol.Engine, connects to the first reachable seed
func (n *Node) Bootstrap(ctx context.Context, seeds []string) (types.PeerAddress, error) {
	if err := n.check(ctx); err != nil {
		return types.PeerAddress{}, err
	}
	for _, seed := range seeds {
		info := genAddrInfo(seed)
		if info == nil || info.ID == n.host.ID() {
			continue
		}
		n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		if err := n.host.Connect(ctx, *info); err != nil {
			klog.Error("Bootstrap", "seed", seed, "err", err)
			continue
		}
		//加保护
		n.host.ConnManager().Protect(info.ID, "seed")
		if err := n.kdht.Bootstrap(n.ctx); err != nil {
			klog.Error("Bootstrap", "dht err", err)
		}
		addrs := make([]string, 0, len(info.Addrs))
		for _, a := range info.Addrs {
			addrs = append(addrs, a.String())
		}
		return types.PeerAddress{ID: info.ID.String(), Addrs: addrs}, nil
	}
	if ctx.Err() != nil {
		return types.PeerAddress{}, types.ErrTimeout
	}
	return types.PeerAddress{}, types.ErrNoSeed
}

type addrRequest struct{}

type addrResponse struct {
	Observed string `json:"observed"`
}

// handleAddr tell the remote peer the address its connection comes from
func (n *Node) handleAddr(stream network.Stream) {
	var req addrRequest
	if err := ReadStream(&req, stream); err != nil {
		return
	}
	resp := &addrResponse{Observed: stream.Conn().RemoteMultiaddr().String()}
	if err := WriteStream(resp, stream); err != nil {
		klog.Error("handleAddr", "write stream error", err)
	}
}

// Discover implements protocol.Engine, asks the seed which address it sees us on.
// The observed ip with our listen port is the external address.
func (n *Node) Discover(ctx context.Context, seed types.PeerAddress) (types.PeerAddress, error) {
	if err := n.check(ctx); err != nil {
		return types.PeerAddress{}, err
	}
	pid, err := n.addPeer(seed, peerstore.TempAddrTTL)
	if err != nil {
		return types.PeerAddress{}, err
	}
	resp := &addrResponse{}
	if err = n.request(ctx, pid, n.addrID, &addrRequest{}, resp); err != nil {
		klog.Error("Discover", "seed", pid, "err", err)
		return types.PeerAddress{}, err
	}
	external, err := externalAddr(resp.Observed, n.Port())
	if err != nil {
		klog.Error("Discover", "seed", pid, "observed", resp.Observed, "err", err)
		return types.PeerAddress{}, types.ErrUnexpectedReply
	}
	n.setExternalAddr(external)
	klog.Debug("Discover", "seed", pid, "external", external)
	return n.Self(), nil
}

func (n *Node) setExternalAddr(addr ma.Multiaddr) {
	n.mu.Lock()
	n.external = addr
	n.mu.Unlock()
	n.host.Peerstore().AddAddrs(n.host.ID(), []ma.Multiaddr{addr}, peerstore.PermanentAddrTTL)
}

// externalAddr replace the port of the observed address, outbound connections use an ephemeral one
func externalAddr(observed string, port int) (ma.Multiaddr, error) {
	m, err := ma.NewMultiaddr(observed)
	if err != nil {
		return nil, err
	}
	if ip, err := m.ValueForProtocol(ma.P_IP4); err == nil {
		return ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", ip, port))
	}
	if ip, err := m.ValueForProtocol(ma.P_IP6); err == nil {
		return ma.NewMultiaddr(fmt.Sprintf("/ip6/%s/tcp/%d", ip, port))
	}
	return nil, types.ErrInvalidParam
}

func genAddrInfo(addr string) *peer.AddrInfo {
	mAddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil
	}
	peerInfo, err := peer.AddrInfoFromP2pAddr(mAddr)
	if err != nil {
		return nil
	}
	return peerInfo
}
