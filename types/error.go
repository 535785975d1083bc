// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "errors"

var (
	// ErrInvalidParam invalid parameter
	ErrInvalidParam = errors.New("ErrInvalidParam")
	// ErrIsClosed queue or engine closed
	ErrIsClosed = errors.New("ErrIsClosed")
	// ErrTimeout operation timeout
	ErrTimeout = errors.New("ErrTimeout")
	// ErrNotStarted p2p engine not bound yet
	ErrNotStarted = errors.New("ErrNotStarted")
	// ErrAlreadyStarted Start called twice
	ErrAlreadyStarted = errors.New("ErrAlreadyStarted")
	// ErrPortInUse listen port not available
	ErrPortInUse = errors.New("ErrPortInUse")
	// ErrNoSeed no reachable bootstrap peer
	ErrNoSeed = errors.New("ErrNoSeed")
	// ErrPeerUnreachable connection to peer could not be opened
	ErrPeerUnreachable = errors.New("ErrPeerUnreachable")
	// ErrProtectedRecord protected record written or removed by a non owner
	ErrProtectedRecord = errors.New("ErrProtectedRecord")
	// ErrDomainProtected location already claimed by another domain key
	ErrDomainProtected = errors.New("ErrDomainProtected")
	// ErrStaleRecord write older than the stored record, which is kept
	ErrStaleRecord = errors.New("ErrStaleRecord")
	// ErrNoProtocol trade message for a trade id without registered protocol
	ErrNoProtocol = errors.New("ErrNoProtocol")
	// ErrUnknownMessage message tag not known
	ErrUnknownMessage = errors.New("ErrUnknownMessage")
	// ErrInvalidMessage message could not be decoded
	ErrInvalidMessage = errors.New("ErrInvalidMessage")
	// ErrNotFound record not found
	ErrNotFound = errors.New("ErrNotFound")
	// ErrUnexpectedReply direct reply does not match the request
	ErrUnexpectedReply = errors.New("ErrUnexpectedReply")
)
