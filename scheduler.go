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
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/logging"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/pool/goroutine"
	"github.com/coio-net/coio/pkg/queue"
)

// closeDrainRounds bounds the number of ticks Close spends letting woken tasks unwind
// before it cancels the ones still alive.
const closeDrainRounds = 64

var schedulerSeq uint32

// multiplexer is the part of netpoll.Poller a Scheduler drives.
type multiplexer interface {
	Register(fd int, h netpoll.Handle, mode netpoll.Mode) error
	Update(fd int, h netpoll.Handle, mode netpoll.Mode) error
	Deregister(fd int) error
	Poll(timeout time.Duration, batch []netpoll.Event) ([]netpoll.Event, error)
	Trigger(fn queue.Func, arg any) error
	HasAsyncJobs() bool
	RunAsyncJobs(onError func(error)) int
	Close() error
}

// Stats is a snapshot of the bookkeeping of a Scheduler.
type Stats struct {
	Tasks    int // live tasks
	Ready    int // tasks in the run queue
	Waiting  int // suspended tasks
	Nodes    int // live nodes
	Timers   int // pending deadlines
	Offloads int // offloaded functions not completed yet
}

// Scheduler runs tasks on a single goroutine, resuming them when the descriptors they
// wait on become ready or their deadlines pass.
//
// Except for Submit and Stop, the methods of a Scheduler must be called from the tasks
// it runs or, while its loop is not running, from the goroutine that drives it.
type Scheduler struct {
	id     uint32
	opts   *Options
	logger logging.Logger
	poller multiplexer

	runq   deque.Deque[*Task]
	nodes  nodeTable
	timers deadlineIndex
	events []netpoll.Event
	tasks  map[*Task]struct{}

	current *Task
	// driver stands for the goroutine blocking in a socket call made outside of any task.
	driver *Task
	nextID uint64

	waiting      int
	offloads     int
	pollFailures int

	hold    bool // keep looping when idle, set for group members
	inLoop  bool
	closing bool
	stop    bool

	mu     sync.RWMutex
	closed bool

	pool    *goroutine.Pool
	ownPool bool
}

// NewScheduler creates a Scheduler along with its multiplexer.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	options := loadOptions(opts...)
	poller, err := netpoll.OpenPoller(options.MaxEvents)
	if err != nil {
		return nil, err
	}
	return newScheduler(options, poller), nil
}

func newScheduler(opts *Options, poller multiplexer) *Scheduler {
	s := &Scheduler{
		id:     atomic.AddUint32(&schedulerSeq, 1) - 1,
		opts:   opts,
		logger: opts.Logger,
		poller: poller,
		nodes:  newNodeTable(),
		events: make([]netpoll.Event, 0, opts.MaxEvents),
		tasks:  make(map[*Task]struct{}),
		pool:   opts.OffloadPool,
	}
	s.driver = &Task{sched: s, heapIndex: -1}
	return s
}

// ID returns the ordinal of the Scheduler within the process.
func (s *Scheduler) ID() int { return int(s.id) }

// Current returns the running Task, or nil outside of any task.
func (s *Scheduler) Current() *Task { return s.current }

// Stats returns a snapshot of the bookkeeping of the Scheduler.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Tasks:    len(s.tasks),
		Ready:    s.runq.Len(),
		Waiting:  s.waiting,
		Nodes:    s.nodes.len(),
		Timers:   s.timers.Len(),
		Offloads: s.offloads,
	}
}

// Go starts a new Task running fn. The Task runs the next time the loop drains its
// run queue, tasks started within the same tick run in the order they were started.
func (s *Scheduler) Go(fn TaskFunc) (*Task, error) {
	if fn == nil {
		return nil, errors.ErrNilTaskFunc
	}
	if s.closing || s.isClosed() {
		return nil, errors.ErrSchedulerClosed
	}
	if s.opts.MaxTasks > 0 && len(s.tasks) >= s.opts.MaxTasks {
		return nil, errors.ErrTooManyTasks
	}
	s.nextID++
	t := newTask(s, s.nextID, fn)
	s.tasks[t] = struct{}{}
	s.ready(t, WakeNone)
	return t, nil
}

// Run runs the loop until no task is runnable or waiting, or until Stop is called.
func (s *Scheduler) Run() error {
	if s.closing || s.isClosed() {
		return errors.ErrSchedulerClosed
	}
	if s.inLoop {
		return errors.ErrSchedulerRunning
	}
	if s.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	s.inLoop = true
	defer func() {
		s.inLoop, s.stop = false, false
	}()

	for {
		if err := s.tick(); err != nil {
			return err
		}
		if s.stop || !s.alive() {
			return nil
		}
	}
}

// Stop makes the running loop return after the current tick, or the next Run return
// after its first tick. It is safe to call Stop from any goroutine.
func (s *Scheduler) Stop() error {
	return s.Submit(func(s *Scheduler) { s.stop = true })
}

// Submit queues fn to be run by the loop of the Scheduler and wakes it up, it is the
// only way for other goroutines to hand work to a Scheduler. fn runs outside of any
// task so it must not block, it may start tasks with Go.
func (s *Scheduler) Submit(fn func(*Scheduler)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrSchedulerClosed
	}
	return s.poller.Trigger(func(any) error {
		fn(s)
		return nil
	}, nil)
}

// Sleep suspends the current Task for d.
func (s *Scheduler) Sleep(d time.Duration) error {
	if d <= 0 {
		return s.Yield()
	}
	reason, err := s.wait(nil, netpoll.ModeNone, time.Now().Add(d))
	if err != nil {
		return err
	}
	if reason == WakeReset {
		return errors.ErrSchedulerClosed
	}
	return nil
}

// Yield puts the current Task at the tail of the run queue, letting the other ready
// tasks run and the multiplexer be polled before it resumes. Outside of any task,
// Yield runs a single tick of the loop.
func (s *Scheduler) Yield() error {
	t := s.current
	if t == nil {
		if s.inLoop {
			return errors.ErrNotInTask
		}
		if s.isClosed() {
			return errors.ErrSchedulerClosed
		}
		s.inLoop = true
		defer func() { s.inLoop = false }()
		return s.tick()
	}
	s.ready(t, WakeNone)
	t.park()
	if s.closing {
		return errors.ErrSchedulerClosed
	}
	return nil
}

type offload struct {
	task *Task
	err  error
	done bool
}

// Offload runs fn on a worker goroutine and suspends the current Task until fn returns,
// so that blocking calls do not stall the loop. Outside of any task, fn is simply called.
func (s *Scheduler) Offload(fn func() error) error {
	t := s.current
	if t == nil {
		if s.inLoop {
			return errors.ErrNotInTask
		}
		return fn()
	}
	if s.closing {
		return errors.ErrSchedulerClosed
	}
	pool, err := s.offloadPool()
	if err != nil {
		return err
	}

	op := &offload{task: t}
	s.offloads++
	err = pool.Submit(func() {
		res := fn()
		if err := s.Submit(func(s *Scheduler) {
			s.offloads--
			op.err, op.done = res, true
			if op.task != nil {
				s.wake(op.task, WakeSignal)
			}
		}); err != nil {
			s.logger.Errorf("scheduler %d: failed to deliver offloaded result: %v", s.id, err)
		}
	})
	if err != nil {
		s.offloads--
		return err
	}

	if _, err = s.wait(nil, netpoll.ModeNone, time.Time{}); err != nil {
		op.task = nil
		return err
	}
	if !op.done {
		op.task = nil
		return errors.ErrSchedulerClosed
	}
	return op.err
}

func (s *Scheduler) offloadPool() (*goroutine.Pool, error) {
	if s.pool == nil {
		p, err := goroutine.New(goroutine.DefaultAntsPoolSize)
		if err != nil {
			return nil, err
		}
		s.pool, s.ownPool = p, true
	}
	return s.pool, nil
}

// Close wakes up every waiting task with a reset, lets the tasks unwind, cancels the
// ones that never started or refuse to finish, and releases the multiplexer.
// Close must not be called while the loop is running, closing twice is a no-op.
func (s *Scheduler) Close() error {
	if s.inLoop {
		return errors.ErrSchedulerRunning
	}
	if s.isClosed() {
		return nil
	}

	s.closing, s.hold = true, false
	for t := range s.tasks {
		switch {
		case !t.started:
			t.abort()
			delete(s.tasks, t)
		case t.state == TaskWaiting:
			s.wake(t, WakeReset)
		}
	}

	s.inLoop = true
	for round := 0; s.alive(); round++ {
		if round >= closeDrainRounds && s.offloads == 0 {
			break
		}
		if err := s.tick(); err != nil {
			s.logger.Errorf("scheduler %d: failed to drain tasks on close: %v", s.id, err)
			break
		}
	}
	s.inLoop = false

	for t := range s.tasks {
		if t.state != TaskFinished {
			s.logger.Warnf("scheduler %d: cancelling task %d still %s on close", s.id, t.id, t.state)
			s.timers.remove(t)
			t.abort()
		}
		delete(s.tasks, t)
	}
	s.runq.Clear()
	// The multiplexer is about to go away along with every registration.
	s.nodes.each(func(n *node) {
		s.logger.Debugf("scheduler %d: fd %d is still open on close", s.id, n.fd)
		n.registered, n.interest = false, netpoll.ModeNone
	})

	s.mu.Lock()
	s.closed = true
	err := s.poller.Close()
	s.mu.Unlock()

	if s.ownPool {
		s.pool.Release()
	}
	return err
}

func (s *Scheduler) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Scheduler) alive() bool {
	return s.hold || s.runq.Len() > 0 || s.waiting > 0 || s.offloads > 0 || s.poller.HasAsyncJobs()
}

// tick runs one iteration of the loop: poll, wake the tasks of ready nodes, run the
// queued messages, expire deadlines and drain the run queue.
func (s *Scheduler) tick() error {
	timeout := time.Duration(-1)
	switch {
	case s.runq.Len() > 0 || s.stop || s.poller.HasAsyncJobs():
		timeout = 0
	case s.timers.Len() > 0:
		if timeout = time.Duration(s.timers.peek().deadline - time.Now().UnixNano()); timeout < 0 {
			timeout = 0
		}
	}

	var err error
	if s.events, err = s.poller.Poll(timeout, s.events[:0]); err != nil {
		s.events = s.events[:0]
		if err = s.pollFailed(err); err != nil {
			return err
		}
	} else {
		s.pollFailures = 0
	}

	for _, ev := range s.events {
		// Nodes destroyed since the batch was produced resolve to nil.
		if n := s.nodes.get(ev.Handle); n != nil {
			s.dispatch(n, ev.Mode)
		}
	}
	s.poller.RunAsyncJobs(s.onJobError)
	s.expire(time.Now().UnixNano())
	s.drain()
	return nil
}

func (s *Scheduler) pollFailed(err error) error {
	s.pollFailures++
	s.logger.Warnf("scheduler %d: poll failed (%d in a row): %v", s.id, s.pollFailures, err)
	policy := s.opts.PollErrorPolicy
	if policy.MaxRetries > 0 && s.pollFailures > policy.MaxRetries {
		return fmt.Errorf("%w: %v", errors.ErrPollRetryExhausted, err)
	}
	if policy.Backoff > 0 {
		time.Sleep(policy.Backoff)
	}
	return nil
}

func (s *Scheduler) onJobError(err error) {
	s.logger.Errorf("scheduler %d: async job failed: %v", s.id, err)
}

// dispatch wakes the Task waiting on n if mode is what it waits for. Hang-ups and
// errors wake it with a reset, readiness in the awaited direction takes precedence
// so that pending data is consumed first.
func (s *Scheduler) dispatch(n *node, mode netpoll.Mode) {
	t := n.waiter
	if t == nil {
		return
	}
	switch {
	case t.mode.Has(netpoll.ModeRead) && mode.Has(netpoll.ModeRead):
		s.wake(t, WakeReadable)
	case t.mode.Has(netpoll.ModeWrite) && mode.Has(netpoll.ModeWrite):
		s.wake(t, WakeWritable)
	case mode.Has(netpoll.ModeReset):
		s.wake(t, WakeReset)
	}
}

// expire wakes the tasks whose deadline is at or before now and drops the interest
// of the nodes they were waiting on.
func (s *Scheduler) expire(now int64) {
	for t := s.timers.peek(); t != nil && t.deadline <= now; t = s.timers.peek() {
		if n := t.node; n != nil && n.registered {
			if err := s.poller.Update(n.fd, n.handle, netpoll.ModeNone); err == nil {
				n.interest = netpoll.ModeNone
			}
		}
		s.wake(t, WakeTimeout)
	}
}

// drain resumes the tasks that are ready at the beginning of the drain, tasks readied
// meanwhile run on the next tick.
func (s *Scheduler) drain() {
	for n := s.runq.Len(); n > 0; n-- {
		t := s.runq.PopFront()
		if t.state != TaskReady {
			continue
		}
		s.current = t
		alive := t.switchIn()
		s.current = nil
		if !alive {
			s.retire(t)
		}
	}
}

func (s *Scheduler) retire(t *Task) {
	t.finish()
	delete(s.tasks, t)
	if t.err != nil {
		s.logger.Debugf("scheduler %d: task %d returned: %v", s.id, t.id, t.err)
	}
}

func (s *Scheduler) ready(t *Task, reason WakeReason) {
	t.state = TaskReady
	t.reason = reason
	if t != s.driver {
		s.runq.PushBack(t)
	}
}

// wait suspends the caller until n is ready for mode, the deadline passes or the wait
// is cancelled. A nil node waits for the deadline or a message only, a zero deadline
// never expires. Outside of any task, the calling goroutine drives the loop instead.
func (s *Scheduler) wait(n *node, mode netpoll.Mode, deadline time.Time) (WakeReason, error) {
	t := s.current
	if t == nil {
		if s.inLoop {
			return WakeNone, errors.ErrNotInTask
		}
		if s.isClosed() {
			return WakeNone, errors.ErrSchedulerClosed
		}
		t = s.driver
	}

	if s.closing {
		if t == s.driver {
			return WakeReset, nil
		}
		// Requeue instead of returning at once, so that Close can cancel a task
		// that keeps retrying.
		s.ready(t, WakeReset)
		return t.park(), nil
	}

	if n != nil {
		if n.waiter != nil {
			return WakeNone, errors.ErrNodeBusy
		}
		if err := s.arm(n, mode); err != nil {
			return WakeNone, err
		}
		n.waiter = t
		t.node, t.mode = n, mode
	}
	if !deadline.IsZero() {
		s.timers.add(t, deadline.UnixNano())
	}
	t.state = TaskWaiting
	s.waiting++

	if t == s.driver {
		return s.drive()
	}
	return t.park(), nil
}

// drive runs ticks on behalf of a socket call made outside of any task until the
// driver pseudo-task is woken up.
func (s *Scheduler) drive() (WakeReason, error) {
	s.inLoop = true
	defer func() { s.inLoop = false }()
	for s.driver.state == TaskWaiting {
		if err := s.tick(); err != nil {
			s.wake(s.driver, WakeNone)
			return WakeNone, err
		}
	}
	return s.driver.reason, nil
}

// wake moves a waiting Task to the run queue, detaching it from its node and deadline.
func (s *Scheduler) wake(t *Task, reason WakeReason) {
	if t.state != TaskWaiting {
		return
	}
	if n := t.node; n != nil {
		n.waiter = nil
		t.node, t.mode = nil, netpoll.ModeNone
	}
	s.timers.remove(t)
	s.waiting--
	s.ready(t, reason)
}

// arm registers the interest of n or replaces it. Updating re-arms the edge trigger,
// readiness that arrived while nobody was waiting is reported again.
func (s *Scheduler) arm(n *node, mode netpoll.Mode) (err error) {
	if n.registered {
		err = s.poller.Update(n.fd, n.handle, mode)
	} else if err = s.poller.Register(n.fd, n.handle, mode); err == nil {
		n.registered = true
	}
	if err == nil {
		n.interest = mode
	}
	return
}

func (s *Scheduler) addNode(fd int) (*node, error) {
	return s.nodes.add(fd)
}

// releaseNode force-wakes the Task waiting on n with a reset and invalidates n.
func (s *Scheduler) releaseNode(n *node) {
	if t := n.waiter; t != nil {
		s.wake(t, WakeReset)
	}
	if n.registered && !s.isClosed() {
		if err := s.poller.Deregister(n.fd); err != nil {
			s.logger.Debugf("scheduler %d: failed to deregister fd %d: %v", s.id, n.fd, err)
		}
	}
	n.registered = false
	_ = s.nodes.remove(n)
}
