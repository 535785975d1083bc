// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package types 外部公用类型
package types

// app parameters
const (
	// Version tradenet version
	Version = "0.3.0"
	// AppName default application name, used for data dirs and wallet file names
	AppName = "tradenet"
	// Coin satoshi per coin
	Coin int64 = 1e8
)

// reserved namespaces of the key scheme
const (
	ArbitratorsNamespace = "Arbitrators"
	ReputationPrefix     = "REPUTATION_"
	DirtySuffix          = "Dirty"
)
