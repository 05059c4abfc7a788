// Copyright (c) 2021 Andy Pan
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

// Package queue implements the lock-free concurrent queue of Maged M. Michael and
// Michael L. Scott (https://dl.acm.org/doi/10.1145/248052.248106). Schedulers use it
// as the mailbox through which other goroutines hand them work.
package queue

import (
	"sync/atomic"
	"unsafe"
)

type lockFreeQueue struct {
	head   unsafe.Pointer
	tail   unsafe.Pointer
	length int32
}

type node struct {
	value *Job
	next  unsafe.Pointer
}

// NewLockFreeQueue instantiates and returns a lock-free AsyncJobQueue.
func NewLockFreeQueue() AsyncJobQueue {
	n := unsafe.Pointer(&node{})
	return &lockFreeQueue{head: n, tail: n}
}

// Enqueue puts the given job at the tail of the queue.
func (q *lockFreeQueue) Enqueue(job *Job) {
	n := &node{value: job}
	for {
		tail := load(&q.tail)
		next := load(&tail.next)
		if tail != load(&q.tail) {
			continue
		}
		if next != nil {
			// Tail is falling behind, help it forward.
			cas(&q.tail, tail, next)
			continue
		}
		if cas(&tail.next, next, n) {
			cas(&q.tail, tail, n)
			atomic.AddInt32(&q.length, 1)
			return
		}
	}
}

// Dequeue removes and returns the job at the head of the queue,
// it returns nil if the queue is empty.
func (q *lockFreeQueue) Dequeue() *Job {
	for {
		head := load(&q.head)
		tail := load(&q.tail)
		next := load(&head.next)
		if head != load(&q.head) {
			continue
		}
		if head == tail {
			if next == nil {
				return nil
			}
			cas(&q.tail, tail, next)
			continue
		}
		// Read the value before CAS, another dequeue might recycle the next node.
		job := next.value
		if cas(&q.head, head, next) {
			atomic.AddInt32(&q.length, -1)
			return job
		}
	}
}

// IsEmpty indicates whether this queue is empty or not.
func (q *lockFreeQueue) IsEmpty() bool {
	return atomic.LoadInt32(&q.length) == 0
}

// Length returns the number of jobs currently queued.
func (q *lockFreeQueue) Length() int32 {
	return atomic.LoadInt32(&q.length)
}

func load(p *unsafe.Pointer) *node {
	return (*node)(atomic.LoadPointer(p))
}

func cas(p *unsafe.Pointer, old, new *node) bool {
	return atomic.CompareAndSwapPointer(p, unsafe.Pointer(old), unsafe.Pointer(new))
}
