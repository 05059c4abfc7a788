// Copyright (c) 2019 Andy Pan
// Copyright (c) 2017 Joshua J Baker
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

package netpoll

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/queue"
)

const wakeHandle Handle = 0

// Poller represents a poller which is in charge of monitoring file-descriptors.
type Poller struct {
	fd      int    // epoll fd
	wfd     int    // wake fd
	wfdBuf  []byte // wfd buffer to read packet
	wakeSig int32
	el      *eventList
	jobs    queue.AsyncJobQueue
}

// OpenPoller instantiates a poller whose event batch starts at maxEvents entries.
func OpenPoller(maxEvents int) (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		poller = nil
		err = os.NewSyscallError("epoll_create1", err)
		return
	}
	if poller.wfd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		_ = unix.Close(poller.fd)
		poller = nil
		err = os.NewSyscallError("eventfd", err)
		return
	}
	// The wake fd is level-triggered, it stays readable until RunAsyncJobs drains it.
	ev := unix.EpollEvent{Events: unix.EPOLLIN}
	packHandle(&ev, wakeHandle)
	if err = unix.EpollCtl(poller.fd, unix.EPOLL_CTL_ADD, poller.wfd, &ev); err != nil {
		_ = poller.Close()
		poller = nil
		err = os.NewSyscallError("epoll_ctl add", err)
		return
	}
	poller.wfdBuf = make([]byte, 8)
	poller.el = newEventList(maxEvents)
	poller.jobs = queue.NewLockFreeQueue()
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	if err := os.NewSyscallError("close", unix.Close(p.fd)); err != nil {
		return err
	}
	return os.NewSyscallError("close", unix.Close(p.wfd))
}

// Register adds fd to the interest set, tagging its events with h.
func (p *Poller) Register(fd int, h Handle, mode Mode) error {
	ev := unix.EpollEvent{Events: modeToEpoll(mode)}
	packHandle(&ev, h)
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

// Update replaces the interest of a registered fd and re-arms its edge trigger.
func (p *Poller) Update(fd int, h Handle, mode Mode) error {
	ev := unix.EpollEvent{Events: modeToEpoll(mode)}
	packHandle(&ev, h)
	return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev))
}

// Deregister removes fd from the interest set.
func (p *Poller) Deregister(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Poll blocks the calling goroutine for up to timeout waiting for readiness, a negative
// timeout waits indefinitely. Ready events are appended to batch and returned.
//
// An interrupted wait returns an empty batch and no error.
func (p *Poller) Poll(timeout time.Duration, batch []Event) ([]Event, error) {
	n, err := unix.EpollWait(p.fd, p.el.events, durationToMsec(timeout))
	if err != nil {
		if err == unix.EINTR {
			return batch, nil
		}
		return batch, os.NewSyscallError("epoll_wait", err)
	}

	for i := 0; i < n; i++ {
		ev := &p.el.events[i]
		h := unpackHandle(ev)
		if h == wakeHandle {
			continue
		}
		batch = append(batch, Event{Handle: h, Mode: epollToMode(ev.Events)})
	}

	if n == p.el.size {
		p.el.expand()
	} else if n < p.el.size>>1 {
		p.el.shrink()
	}
	return batch, nil
}

// durationToMsec rounds up so that a wait never ends before the requested timeout.
func durationToMsec(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	msec := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		msec++
	}
	if msec > 1<<31-1 {
		msec = 1<<31 - 1
	}
	return int(msec)
}

// Make the endianness of bytes compatible with more linux OSs under different processor-architectures,
// according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

// Trigger queues fn to be run by the owner of the poller and wakes up a blocking Poll.
// It is safe to call Trigger from any goroutine.
func (p *Poller) Trigger(fn queue.Func, arg any) (err error) {
	job := queue.GetJob()
	job.Run, job.Arg = fn, arg
	p.jobs.Enqueue(job)
	if atomic.CompareAndSwapInt32(&p.wakeSig, 0, 1) {
		err = p.wake()
	}
	return
}

func (p *Poller) wake() (err error) {
	for _, err = unix.Write(p.wfd, b); err == unix.EINTR || err == unix.EAGAIN; _, err = unix.Write(p.wfd, b) {
	}
	return os.NewSyscallError("write", err)
}

// HasAsyncJobs reports whether jobs are waiting to be run.
func (p *Poller) HasAsyncJobs() bool {
	return !p.jobs.IsEmpty()
}

// RunAsyncJobs runs at most MaxAsyncJobsAtOneTime queued jobs on the calling goroutine and
// returns how many were run. Errors returned by jobs are handed to onError.
func (p *Poller) RunAsyncJobs(onError func(error)) (ran int) {
	if atomic.LoadInt32(&p.wakeSig) == 0 && p.jobs.IsEmpty() {
		return
	}
	_, _ = unix.Read(p.wfd, p.wfdBuf)

	for ; ran < MaxAsyncJobsAtOneTime; ran++ {
		job := p.jobs.Dequeue()
		if job == nil {
			break
		}
		if err := job.Run(job.Arg); err != nil && onError != nil {
			onError(err)
		}
		queue.PutJob(job)
	}

	atomic.StoreInt32(&p.wakeSig, 0)
	if !p.jobs.IsEmpty() && atomic.CompareAndSwapInt32(&p.wakeSig, 0, 1) {
		if err := p.wake(); err != nil && onError != nil {
			onError(err)
		}
	}
	return
}
