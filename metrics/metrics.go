// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics 节点内部计数器, 基于 go-metrics
package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/33cn/tradenet/common/log"
	go_metrics "github.com/rcrowley/go-metrics"
)

var mlog = log.New("module", "metrics")

// Namespace metric name prefix
var Namespace = "tradenet"

// Registry shared by all p2p modules
var Registry = go_metrics.NewRegistry()

// Counter get or register a counter
func Counter(name string) go_metrics.Counter {
	return go_metrics.GetOrRegisterCounter(Namespace+"."+name, Registry)
}

// Timer get or register a timer
func Timer(name string) go_metrics.Timer {
	return go_metrics.GetOrRegisterTimer(Namespace+"."+name, Registry)
}

// Meter get or register a meter
func Meter(name string) go_metrics.Meter {
	return go_metrics.GetOrRegisterMeter(Namespace+"."+name, Registry)
}

// Snapshot counter values and timer counts by name
func Snapshot() map[string]int64 {
	values := make(map[string]int64)
	Registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case go_metrics.Counter:
			values[name] = m.Count()
		case go_metrics.Timer:
			values[name] = m.Count()
		case go_metrics.Meter:
			values[name] = m.Count()
		}
	})
	return values
}

// StartLog print the metrics every interval until ctx done
func StartLog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		mlog.Info("Metrics data is not enabled to emit")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logSnapshot()
		}
	}
}

func logSnapshot() {
	values := Snapshot()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	ctx := make([]interface{}, 0, 2*len(names))
	for _, name := range names {
		ctx = append(ctx, name, values[name])
	}
	mlog.Info("metrics", ctx...)
}
