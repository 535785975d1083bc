// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	f := NewFormatter("BTC")
	assert.Equal(t, "1.50 BTC", f.Format(150000000))
	assert.Equal(t, "0.00 BTC", f.Format(0))
	assert.Equal(t, "0.00000001 BTC", f.Format(1))
	assert.Equal(t, "21.00 BTC", f.Format(21*types.Coin))
	assert.Equal(t, "-0.12", (&Formatter{Decimals: 8}).Format(-12000000))
}

func TestLocation(t *testing.T) {
	cfg := &types.Wallet{WalletDir: "data", Network: "TESTNET", CoinCode: "BTC"}
	assert.Equal(t, filepath.Join("data", "testnet", "wallet"), Dir(cfg))
	assert.Equal(t, "tradenet_BTC.wallet", FileName("BTC"))
}

func TestPrintInfo(t *testing.T) {
	cfg := &types.Wallet{WalletDir: t.TempDir(), Network: "mainnet", CoinCode: "BTC"}
	svc := NewFileService("BTC")

	_, err := ReadInfo(cfg, nil)
	assert.Equal(t, types.ErrInvalidParam, err)
	var out bytes.Buffer
	assert.NotNil(t, PrintInfo(&out, cfg, svc))

	require.Nil(t, os.MkdirAll(Dir(cfg), 0755))
	file := filepath.Join(Dir(cfg), FileName("BTC"))
	require.Nil(t, os.WriteFile(file, []byte(`{"totalReceived":250000000}`), 0600))
	require.Nil(t, PrintInfo(&out, cfg, svc))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, 3, len(lines))
	assert.True(t, strings.HasPrefix(lines[0], "walletDir: "))
	assert.True(t, strings.HasSuffix(lines[0], filepath.Join("mainnet", "wallet")))
	assert.Equal(t, "tradenet_BTC.wallet", lines[1])
	assert.Equal(t, "totalReceived: 2.50 BTC", lines[2])

	require.Nil(t, os.WriteFile(file, []byte("{"), 0600))
	_, err = ReadInfo(cfg, svc)
	assert.Equal(t, types.ErrInvalidMessage, errors.Cause(err))
}
