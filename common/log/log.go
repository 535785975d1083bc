// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log 日志相关接口以及函数
package log

import (
	"os"
	"sync"

	"github.com/33cn/tradenet/types"
	log15 "github.com/inconshreveable/log15"
	golog "github.com/ipfs/go-log/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// 保存文件日志处理器的引用, 重复设置时不重新打开日志文件
	fileHandler log15.Handler
	fileLogName string
	mu          sync.Mutex
)

//SetLogLevel 设置控制台日志输出级别
func SetLogLevel(logLevel string) {
	mu.Lock()
	defer mu.Unlock()
	log15.Root().SetHandler(getConsoleLogHandler(logLevel))
	setLibp2pLevel(logLevel)
}

//SetFileLog 设置文件日志和控制台日志信息
func SetFileLog(log *types.Log) {
	if log == nil {
		log = &types.Log{LogFile: "logs/" + types.AppName + ".log"}
	}
	if log.LogFile == "" {
		SetLogLevel(log.LogConsoleLevel)
		if log.Libp2pLevel != "" {
			setLibp2pLevel(log.Libp2pLevel)
		}
		return
	}
	resetLog(log)
}

// 清空原来所有的日志Handler，根据配置文件信息重置文件和控制台日志
func resetLog(log *types.Log) {
	mu.Lock()
	defer mu.Unlock()
	fillDefaultValue(log)
	log15.Root().SetHandler(log15.MultiHandler(getConsoleLogHandler(log.LogConsoleLevel), getFileLogHandler(log)))
	setLibp2pLevel(log.Libp2pLevel)
}

// 保证默认性况下为error级别，防止打印太多日志
func fillDefaultValue(log *types.Log) {
	if log.Loglevel == "" {
		log.Loglevel = log15.LvlError.String()
	}
	if log.LogConsoleLevel == "" {
		log.LogConsoleLevel = log15.LvlError.String()
	}
	if log.Libp2pLevel == "" {
		log.Libp2pLevel = log15.LvlError.String()
	}
}

func isWindows() bool {
	return os.PathSeparator == '\\' && os.PathListSeparator == ';'
}

func getConsoleLogHandler(logLevel string) log15.Handler {
	format := log15.TerminalFormat()
	if isWindows() {
		format = log15.LogfmtFormat()
	}
	return log15.LvlFilterHandler(
		getLevel(logLevel),
		log15.StreamHandler(os.Stdout, format),
	)
}

func getFileLogHandler(log *types.Log) log15.Handler {
	if fileHandler != nil && fileLogName == log.LogFile {
		return fileHandler
	}

	rotateLogger := &lumberjack.Logger{
		Filename:   log.LogFile,
		MaxSize:    int(log.MaxFileSize),
		MaxBackups: int(log.MaxBackups),
		MaxAge:     int(log.MaxAge),
		LocalTime:  log.LocalTime,
		Compress:   log.Compress,
	}

	fileh := log15.LvlFilterHandler(
		getLevel(log.Loglevel),
		log15.StreamHandler(rotateLogger, log15.LogfmtFormat()),
	)

	// 增加打印调用源文件、方法和代码行的判断
	if log.CallerFile {
		fileh = log15.CallerFileHandler(fileh)
	}
	if log.CallerFunction {
		fileh = log15.CallerFuncHandler(fileh)
	}

	fileHandler = fileh
	fileLogName = log.LogFile
	return fileh
}

func getLevel(lvlString string) log15.Lvl {
	lvl, err := log15.LvlFromString(lvlString)
	if err != nil {
		// 日志级别配置不正确时默认为error级别
		return log15.LvlError
	}
	return lvl
}

// libp2p 内部模块使用 go-log 输出日志
func setLibp2pLevel(lvlString string) {
	lvl, err := golog.LevelFromString(libp2pLevelName(lvlString))
	if err != nil {
		lvl = golog.LevelError
	}
	golog.SetAllLoggers(lvl)
}

// log15 级别名称转换为 go-log 的级别名称
func libp2pLevelName(lvlString string) string {
	switch lvlString {
	case "eror", "err", "":
		return "error"
	case "dbug":
		return "debug"
	case "crit":
		return "fatal"
	}
	return lvlString
}

//New new
func New(ctx ...interface{}) log15.Logger {
	return NewMain(ctx...)
}

//NewMain new
func NewMain(ctx ...interface{}) log15.Logger {
	return log15.Root().New(ctx...)
}
