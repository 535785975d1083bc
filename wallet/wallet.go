// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wallet 钱包服务接口, 钱包文件位置以及金额格式化
package wallet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var walletlog = log.New("module", "wallet")

// DefaultDecimals satoshi per coin exponent
const DefaultDecimals = 8

// Wallet read-only view of a wallet
type Wallet interface {
	// TotalReceived in the smallest unit
	TotalReceived() int64
}

// Service wallet subsystem consumed by the node
type Service interface {
	ReadWallet(path string) (Wallet, error)
	FormatAmount(amount int64) string
}

// Formatter coin amounts with code, at least two decimals
type Formatter struct {
	Code     string
	Decimals int32
}

// NewFormatter formatter with DefaultDecimals
func NewFormatter(code string) *Formatter {
	return &Formatter{Code: code, Decimals: DefaultDecimals}
}

// Format e.g. 150000000 -> "1.50 BTC"
func (f *Formatter) Format(amount int64) string {
	d := decimal.New(amount, -f.Decimals)
	s := d.String()
	if i := strings.IndexByte(s, '.'); i < 0 || len(s)-i-1 < 2 {
		s = d.StringFixed(2)
	}
	if f.Code == "" {
		return s
	}
	return s + " " + f.Code
}

// Dir <walletDir>/<network>/wallet
func Dir(cfg *types.Wallet) string {
	return filepath.Join(cfg.WalletDir, strings.ToLower(cfg.Network), "wallet")
}

// FileName wallet file of a coin
func FileName(coinCode string) string {
	return types.AppName + "_" + coinCode + ".wallet"
}

// Info wallet location and balance
type Info struct {
	Dir           string
	File          string
	TotalReceived string
}

// ReadInfo locate and read the wallet configured by cfg
func ReadInfo(cfg *types.Wallet, svc Service) (*Info, error) {
	if cfg == nil || svc == nil {
		return nil, types.ErrInvalidParam
	}
	dir, err := filepath.Abs(Dir(cfg))
	if err != nil {
		return nil, err
	}
	info := &Info{Dir: dir, File: FileName(cfg.CoinCode)}
	w, err := svc.ReadWallet(filepath.Join(dir, info.File))
	if err != nil {
		walletlog.Error("ReadInfo", "file", info.File, "err", err)
		return nil, err
	}
	info.TotalReceived = svc.FormatAmount(w.TotalReceived())
	return info, nil
}

// PrintInfo print wallet dir, file name and total received to out
func PrintInfo(out io.Writer, cfg *types.Wallet, svc Service) error {
	info, err := ReadInfo(cfg, svc)
	if err != nil {
		return err
	}
	printProperty(out, "walletDir", info.Dir)
	fmt.Fprintln(out, info.File)
	printProperty(out, "totalReceived", info.TotalReceived)
	return nil
}

func printProperty(out io.Writer, key, value string) {
	fmt.Fprintf(out, "%s: %s\n", key, value)
}

// summary json wallet summary file
type summary struct {
	Received int64 `json:"totalReceived"`
}

func (s *summary) TotalReceived() int64 {
	return s.Received
}

// FileService reads json wallet summaries like {"totalReceived": 150000000}
type FileService struct {
	*Formatter
}

var _ Service = (*FileService)(nil)

// NewFileService service for coinCode
func NewFileService(coinCode string) *FileService {
	return &FileService{Formatter: NewFormatter(coinCode)}
}

// ReadWallet implements Service
func (s *FileService) ReadWallet(path string) (Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "ReadWallet")
	}
	w := &summary{}
	if err = json.Unmarshal(data, w); err != nil {
		return nil, errors.Wrap(types.ErrInvalidMessage, err.Error())
	}
	return w, nil
}

// FormatAmount implements Service
func (s *FileService) FormatAmount(amount int64) string {
	return s.Format(amount)
}
