// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	cfg, err := Init("testdata/tradenet.toml")
	require.Nil(t, err)
	assert.Equal(t, "tradenet", cfg.Title)
	assert.Equal(t, "info", cfg.Log.Loglevel)
	assert.Equal(t, uint32(300), cfg.Log.MaxFileSize)
	assert.True(t, cfg.Log.Compress)
	assert.Equal(t, int32(5000), cfg.P2P.Port)
	assert.Equal(t, "kad", cfg.P2P.Engine)
	assert.Equal(t, 1, len(cfg.P2P.Seeds))
	assert.Equal(t, int32(10), cfg.P2P.ConnLifetime)
	assert.Equal(t, "testnet", cfg.Wallet.Network)
	// not in file, filled
	assert.Equal(t, int32(DefaultPortAttempts), cfg.P2P.PortAttempts)

	_, err = Init("testdata/notexist.toml")
	assert.NotNil(t, err)
}

func TestInitString(t *testing.T) {
	cfg, err := InitString(`
[p2p]
engine="memnet"
isSeed=true
`)
	require.Nil(t, err)
	assert.Equal(t, "memnet", cfg.P2P.Engine)
	assert.True(t, cfg.P2P.IsSeed)
	assert.Equal(t, int32(DefaultPort), cfg.P2P.Port)
	assert.Equal(t, int32(DefaultMaxConnections), cfg.P2P.MaxConnections)
	assert.Equal(t, DefaultCoinCode, cfg.Wallet.CoinCode)
	assert.NotNil(t, cfg.Log)

	_, err = InitString("[p2p\nengine=")
	assert.NotNil(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "tradenet", cfg.Title)
	assert.Equal(t, int32(DefaultBootstrapTimeout), cfg.P2P.BootstrapTimeout)
	assert.Equal(t, int32(DefaultReplication), cfg.P2P.Replication)
}
