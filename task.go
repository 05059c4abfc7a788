// Copyright (c) 2026 The Coio Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package coio

import (
	"github.com/webriots/coro"

	"github.com/coio-net/coio/pkg/netpoll"
)

// WakeReason tells a suspended Task why it was resumed.
type WakeReason uint8

const (
	// WakeNone is the reason of a Task that is started or resumed after a Yield.
	WakeNone WakeReason = iota
	// WakeReadable means the awaited descriptor became readable.
	WakeReadable
	// WakeWritable means the awaited descriptor became writable.
	WakeWritable
	// WakeTimeout means the deadline of the wait passed first.
	WakeTimeout
	// WakeReset means the descriptor reported an error or hang-up, its node was
	// destroyed or the scheduler is closing.
	WakeReset
	// WakeSignal means a message addressed to the Task arrived, e.g. an offloaded
	// function completed.
	WakeSignal
)

func (r WakeReason) String() string {
	switch r {
	case WakeNone:
		return "none"
	case WakeReadable:
		return "readable"
	case WakeWritable:
		return "writable"
	case WakeTimeout:
		return "timeout"
	case WakeReset:
		return "reset"
	case WakeSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// TaskState is the lifecycle state of a Task.
type TaskState uint8

const (
	// TaskReady is the state of a Task sitting in the run queue.
	TaskReady TaskState = iota
	// TaskRunning is the state of the Task currently executing.
	TaskRunning
	// TaskWaiting is the state of a Task suspended on a node, a timer or a message.
	TaskWaiting
	// TaskFinished is the state of a Task whose function returned or that was cancelled.
	TaskFinished
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// TaskFunc is the entry function of a Task, it receives the Scheduler running it.
type TaskFunc func(s *Scheduler) error

// Task is a cooperatively scheduled unit of execution with its own stack.
// Tasks never migrate between schedulers.
type Task struct {
	id      uint64
	sched   *Scheduler
	fn      TaskFunc
	state   TaskState
	started bool
	err     error

	resume  func(WakeReason) (struct{}, bool)
	cancel  func()
	suspend func() WakeReason

	// reason is handed to the Task the next time it resumes.
	reason WakeReason

	// node and mode describe the readiness the Task waits for, if any.
	node *node
	mode netpoll.Mode

	// deadline bookkeeping, heapIndex is -1 while the Task is not in the deadline index.
	deadline  int64
	heapIndex int
}

func newTask(s *Scheduler, id uint64, fn TaskFunc) *Task {
	t := &Task{id: id, sched: s, fn: fn, heapIndex: -1}
	t.resume, t.cancel = coro.New(func(_ func(struct{}) WakeReason, suspend func() WakeReason) (z struct{}) {
		t.suspend = suspend
		t.err = t.fn(t.sched)
		return
	})
	return t
}

// ID returns the identifier of the Task, unique within its Scheduler.
func (t *Task) ID() uint64 { return t.id }

// State returns the lifecycle state of the Task.
func (t *Task) State() TaskState { return t.state }

// Err returns the error the Task function returned, it is only meaningful once
// the Task is finished.
func (t *Task) Err() error { return t.err }

// Scheduler returns the Scheduler owning the Task.
func (t *Task) Scheduler() *Scheduler { return t.sched }

// switchIn transfers control to the Task until it suspends or returns, and
// reports whether the Task is still alive.
func (t *Task) switchIn() bool {
	t.state = TaskRunning
	t.started = true
	reason := t.reason
	t.reason = WakeNone
	_, alive := t.resume(reason)
	return alive
}

// park suspends the running Task and returns the reason it was resumed with.
func (t *Task) park() WakeReason {
	return t.suspend()
}

// finish records that the Task function returned.
func (t *Task) finish() {
	t.state = TaskFinished
	t.resume, t.suspend, t.cancel = nil, nil, nil
}

// abort unwinds a Task that is not running and will never be resumed again.
func (t *Task) abort() {
	cancel := t.cancel
	t.finish()
	if cancel != nil {
		cancel()
	}
}
