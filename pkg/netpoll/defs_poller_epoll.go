// Copyright (c) 2019 The Gnet Authors. All rights reserved.
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

import "golang.org/x/sys/unix"

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
	errEvents   = unix.EPOLLERR | unix.EPOLLHUP
)

func modeToEpoll(mode Mode) uint32 {
	events := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if mode&ModeRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if mode&ModeWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func epollToMode(events uint32) (mode Mode) {
	if events&readEvents != 0 {
		mode |= ModeRead
	}
	if events&writeEvents != 0 {
		mode |= ModeWrite
	}
	if events&errEvents != 0 {
		mode |= ModeReset
	}
	return
}

// The 64-bit epoll_data union is spread over the Fd and Pad fields of unix.EpollEvent.
func packHandle(ev *unix.EpollEvent, h Handle) {
	ev.Fd = int32(uint32(h))
	ev.Pad = int32(uint32(h >> 32))
}

func unpackHandle(ev *unix.EpollEvent) Handle {
	return Handle(uint32(ev.Fd)) | Handle(uint32(ev.Pad))<<32
}

type eventList struct {
	size   int
	events []unix.EpollEvent
}

func newEventList(size int) *eventList {
	if size < MinPollEventsCap {
		size = MinPollEventsCap
	}
	if size > MaxPollEventsCap {
		size = MaxPollEventsCap
	}
	return &eventList{size, make([]unix.EpollEvent, size)}
}

func (el *eventList) expand() {
	if newSize := el.size << 1; newSize <= MaxPollEventsCap {
		el.size = newSize
		el.events = make([]unix.EpollEvent, newSize)
	}
}

func (el *eventList) shrink() {
	if newSize := el.size >> 1; newSize >= MinPollEventsCap {
		el.size = newSize
		el.events = make([]unix.EpollEvent, newSize)
	}
}
