// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

//default names and parameters
const (
	DhtStoreNamespace = "tradenet-dhtstore"
	DBName            = "p2pstore"

	DefaultDataPath  = "datadir/p2pstore"
	DefaultDataCache = 128

	locationPrefix = "/loc"
	domainPrefix   = "/domain"
)
