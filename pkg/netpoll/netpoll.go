// Copyright (c) 2025 The Gnet Authors. All rights reserved.
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

/*
Package netpoll provides the readiness multiplexer that drives coio schedulers.

The Poller is backed by epoll in edge-triggered mode: once a descriptor has been reported
readable (or writable) it will not be reported again for the same state until the caller
re-arms it with Update, which makes the kernel re-evaluate the readiness of the descriptor.

Every registration carries an opaque Handle chosen by the caller. The Handle is handed back
verbatim in each Event, so the caller can resolve an event to its own bookkeeping without
the poller ever holding a pointer to it:

	poller, err := netpoll.OpenPoller(netpoll.InitPollEventsCap)
	if err != nil {
		// handle error
	}
	defer poller.Close()

	if err = poller.Register(fd, netpoll.Handle(42), netpoll.ModeRead); err != nil {
		// handle error
	}

	events, err := poller.Poll(time.Second, nil)
	for _, ev := range events {
		if ev.Mode.Has(netpoll.ModeRead) {
			// drain fd until EAGAIN, then Update to re-arm
		}
	}

Peer hang-ups and socket errors are reported as ModeReset, which is neither readable nor
writable. Handle zero is reserved for the poller's own wakeup descriptor.

Other goroutines talk to the goroutine that owns the poller only through Trigger, which
queues a job and wakes up a blocking Poll; the owner runs queued jobs with RunAsyncJobs.
*/
package netpoll

import "strings"

// Mode is a bitset of readiness directions.
type Mode uint8

const (
	// ModeNone expresses no interest, only error conditions are reported.
	ModeNone Mode = 0
	// ModeRead is the readable direction.
	ModeRead Mode = 1 << iota
	// ModeWrite is the writable direction.
	ModeWrite
	// ModeReset is the synthetic mode reported for hang-ups and socket errors.
	ModeReset
)

// Has reports whether all bits of other are set in m.
func (m Mode) Has(other Mode) bool {
	return other != ModeNone && m&other == other
}

func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	var names []string
	if m&ModeRead != 0 {
		names = append(names, "read")
	}
	if m&ModeWrite != 0 {
		names = append(names, "write")
	}
	if m&ModeReset != 0 {
		names = append(names, "reset")
	}
	return strings.Join(names, "|")
}

// Handle is the caller-defined identity of a registration.
type Handle uint64

// Event is one readiness notification.
type Event struct {
	Handle Handle
	Mode   Mode
}

const (
	// InitPollEventsCap represents the initial capacity of the poller event-list.
	InitPollEventsCap = 128
	// MaxPollEventsCap is the maximum limitation of events that the poller can process at once.
	MaxPollEventsCap = 1024
	// MinPollEventsCap is the minimum limitation of events that the poller can process at once.
	MinPollEventsCap = 32
	// MaxAsyncJobsAtOneTime is the maximum amount of queued jobs run by a single RunAsyncJobs.
	MaxAsyncJobsAtOneTime = 256
)
