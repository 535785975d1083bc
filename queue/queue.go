// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue 单消费者任务队列以及异步结果
//
// 网络引擎在自己的 goroutine 上完成 I/O, 所有的结果回调、监听器通知以及注册表修改
// 都通过 Queue 投递到同一个 worker 上顺序执行:
//  q := queue.New("p2p")
//  q.Post(func() { ... })
//  q.Close()
package queue

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/33cn/tradenet/common/log"
	"github.com/33cn/tradenet/types"
)

var qlog = log.New("module", "queue")

// Queue unbounded FIFO executed by a single worker goroutine
type Queue struct {
	name     string
	mu       sync.Mutex
	tasks    []func()
	signal   chan struct{}
	done     chan struct{}
	isClosed int32
	running  int32
}

// New create and start a queue
func New(name string) *Queue {
	q := &Queue{
		name:   name,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name queue name
func (q *Queue) Name() string {
	return q.name
}

// Post append a task, tasks run in post order
func (q *Queue) Post(fn func()) error {
	if fn == nil {
		return types.ErrInvalidParam
	}
	q.mu.Lock()
	if q.isClose() {
		q.mu.Unlock()
		return types.ErrIsClosed
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Flush wait until every task posted before the call has run
func (q *Queue) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if err := q.Post(func() { close(ch) }); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return types.ErrTimeout
	}
}

// Busy reports whether a task is being executed
func (q *Queue) Busy() bool {
	return atomic.LoadInt32(&q.running) == 1
}

// Close stop accepting tasks, run the pending ones and wait for the worker.
// Must not be called from inside a task.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.isClose() {
		q.mu.Unlock()
		<-q.done
		return
	}
	atomic.StoreInt32(&q.isClosed, 1)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	<-q.done
	qlog.Debug("queue closed", "name", q.name)
}

// IsClosed closed
func (q *Queue) IsClosed() bool {
	return q.isClose()
}

func (q *Queue) isClose() bool {
	return atomic.LoadInt32(&q.isClosed) == 1
}

func (q *Queue) loop() {
	defer close(q.done)
	for range q.signal {
		for {
			q.mu.Lock()
			if len(q.tasks) == 0 {
				closed := q.isClose()
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			q.run(task)
		}
	}
}

func (q *Queue) run(task func()) {
	atomic.StoreInt32(&q.running, 1)
	defer func() {
		atomic.StoreInt32(&q.running, 0)
		if r := recover(); r != nil {
			qlog.Error("task panic", "name", q.name, "recover", r, "trace", string(debug.Stack()))
		}
	}()
	task()
}
