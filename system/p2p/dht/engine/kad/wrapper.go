// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kad

import (
	"bytes"
	"encoding/json"
	"io"
	"runtime"

	dhttypes "github.com/33cn/tradenet/system/p2p/dht/types"
	"github.com/33cn/tradenet/types"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-msgio"
	"github.com/pkg/errors"
)

var (
	messageHeader = headerSafe([]byte("/tradenet/json"))
)

// 通过网络传递的错误, 以名称还原为本地的错误值
var wireErrors = map[string]error{}

func init() {
	for _, err := range []error{
		types.ErrInvalidParam,
		types.ErrIsClosed,
		types.ErrTimeout,
		types.ErrPeerUnreachable,
		types.ErrProtectedRecord,
		types.ErrDomainProtected,
		types.ErrStaleRecord,
		types.ErrNoProtocol,
		types.ErrUnknownMessage,
		types.ErrInvalidMessage,
		types.ErrNotFound,
	} {
		wireErrors[err.Error()] = err
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return errors.Cause(err).Error()
}

func parseError(s string) error {
	if s == "" {
		return nil
	}
	if err, ok := wireErrors[s]; ok {
		return err
	}
	return errors.New(s)
}

// ReadStream reads message from stream.
func ReadStream(data interface{}, stream network.Stream) error {
	header := make([]byte, len(messageHeader))
	_, err := io.ReadFull(stream, header)
	if err != nil || !bytes.Equal(header, messageHeader) {
		klog.Error("ReadStream", "pid", stream.Conn().RemotePeer(), "protocolID", stream.Protocol(), "read header err", err)
		if err == nil {
			err = types.ErrInvalidMessage
		}
		return err
	}

	reader := msgio.NewReaderSize(stream, dhttypes.MaxMessageSize)
	msg, err := reader.ReadMsg()
	// 内部使用了内存池, 回收内存
	defer reader.ReleaseMsg(msg)
	if err != nil {
		klog.Error("ReadStream", "pid", stream.Conn().RemotePeer(), "protocolID", stream.Protocol(), "read msg err", err)
		return err
	}
	if err = json.Unmarshal(msg, data); err != nil {
		klog.Error("ReadStream", "pid", stream.Conn().RemotePeer(), "protocolID", stream.Protocol(), "decode err", err)
		return errors.Wrap(types.ErrInvalidMessage, err.Error())
	}
	return nil
}

// WriteStream writes message to stream.
func WriteStream(data interface{}, stream network.Stream) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err = stream.Write(messageHeader); err != nil {
		klog.Error("WriteStream", "pid", stream.Conn().RemotePeer(), "protocolID", stream.Protocol(), "write header err", err)
		return err
	}
	writer := msgio.NewWriter(stream)
	if err = writer.WriteMsg(msg); err != nil {
		klog.Error("WriteStream", "pid", stream.Conn().RemotePeer(), "protocolID", stream.Protocol(), "write msg err", err)
		return err
	}
	return nil
}

// CloseStream closes the stream after writing
func CloseStream(stream network.Stream) {
	if stream == nil {
		return
	}
	err := stream.Close()
	if err != nil {
		klog.Debug("CloseStream", "err", err, "protocol ID", stream.Protocol())
	}
}

// HandlerWithClose wraps handler with closing stream and recovering from panic.
func HandlerWithClose(f network.StreamHandler) network.StreamHandler {
	return func(stream network.Stream) {
		defer func() {
			if r := recover(); r != nil {
				klog.Error("handle stream", "panic error", r, "trace", string(panicTrace(4)))
				_ = stream.Reset()
			}
		}()
		f(stream)
		CloseStream(stream)
	}
}

// panicTrace traces panic stack info.
func panicTrace(kb int) []byte {
	s := []byte("/src/runtime/panic.go")
	e := []byte("\ngoroutine ")
	line := []byte("\n")
	stack := make([]byte, kb<<10) //4KB
	length := runtime.Stack(stack, true)
	start := bytes.Index(stack, s)
	if start == -1 {
		return stack[:length]
	}
	stack = stack[start:length]
	start = bytes.Index(stack, line) + 1
	stack = stack[start:]
	end := bytes.LastIndex(stack, line)
	if end != -1 {
		stack = stack[:end]
	}
	end = bytes.Index(stack, e)
	if end != -1 {
		stack = stack[:end]
	}
	return bytes.TrimRight(stack, "\n")
}

// multicodec style header, <len><path>\n
func headerSafe(path []byte) []byte {
	l := len(path) + 1 // + \n
	buf := make([]byte, l+1)
	buf[0] = byte(l)
	copy(buf[1:], path)
	buf[l] = '\n'
	return buf
}
