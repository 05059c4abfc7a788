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
	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/netpoll"
)

// node binds a descriptor to its Scheduler: the interest registered with the
// multiplexer and the Task waiting on it, if any.
type node struct {
	fd         int
	handle     netpoll.Handle
	interest   netpoll.Mode
	registered bool
	waiter     *Task
}

type nodeSlot struct {
	gen  uint32
	node *node
}

// nodeTable hands out generation-checked handles, so that an event carrying the
// handle of a destroyed node resolves to nothing even if its slot has been reused.
type nodeTable struct {
	slots []nodeSlot
	free  []uint32
	byFD  map[int]*node
}

func newNodeTable() nodeTable {
	return nodeTable{byFD: make(map[int]*node)}
}

func makeHandle(slot, gen uint32) netpoll.Handle {
	return netpoll.Handle(gen)<<32 | netpoll.Handle(slot)
}

func splitHandle(h netpoll.Handle) (slot, gen uint32) {
	return uint32(h), uint32(h >> 32)
}

// add creates the node of fd, a descriptor has at most one live node.
func (nt *nodeTable) add(fd int) (*node, error) {
	if _, ok := nt.byFD[fd]; ok {
		return nil, errors.ErrDuplicateNode
	}
	var slot uint32
	if l := len(nt.free); l > 0 {
		slot = nt.free[l-1]
		nt.free = nt.free[:l-1]
	} else {
		slot = uint32(len(nt.slots))
		// Generations start at 1 so that no handle collides with the wakeup handle 0.
		nt.slots = append(nt.slots, nodeSlot{gen: 1})
	}
	n := &node{fd: fd, handle: makeHandle(slot, nt.slots[slot].gen)}
	nt.slots[slot].node = n
	nt.byFD[fd] = n
	return n, nil
}

// get resolves h, returning nil for handles of destroyed nodes.
func (nt *nodeTable) get(h netpoll.Handle) *node {
	slot, gen := splitHandle(h)
	if int(slot) >= len(nt.slots) {
		return nil
	}
	s := &nt.slots[slot]
	if s.gen != gen || s.node == nil {
		return nil
	}
	return s.node
}

// remove invalidates n and every handle that refers to it. Removing a node twice is a no-op.
func (nt *nodeTable) remove(n *node) error {
	if nt.get(n.handle) != n {
		return errors.ErrInvalidNode
	}
	slot, _ := splitHandle(n.handle)
	s := &nt.slots[slot]
	s.node = nil
	if s.gen++; s.gen == 0 {
		s.gen = 1
	}
	nt.free = append(nt.free, slot)
	delete(nt.byFD, n.fd)
	return nil
}

func (nt *nodeTable) len() int {
	return len(nt.byFD)
}

func (nt *nodeTable) each(fn func(*node)) {
	for _, n := range nt.byFD {
		fn(n)
	}
}
