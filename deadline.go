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

import "container/heap"

// deadlineIndex is a min-heap of waiting Tasks ordered by deadline, in unix nanoseconds.
type deadlineIndex []*Task

func (d deadlineIndex) Len() int { return len(d) }

func (d deadlineIndex) Less(i, j int) bool { return d[i].deadline < d[j].deadline }

func (d deadlineIndex) Swap(i, j int) {
	d[i], d[j] = d[j], d[i]
	d[i].heapIndex = i
	d[j].heapIndex = j
}

func (d *deadlineIndex) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*d)
	*d = append(*d, t)
}

func (d *deadlineIndex) Pop() any {
	old := *d
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*d = old[:n-1]
	return t
}

func (d *deadlineIndex) add(t *Task, deadline int64) {
	t.deadline = deadline
	heap.Push(d, t)
}

func (d *deadlineIndex) remove(t *Task) {
	if t.heapIndex >= 0 {
		heap.Remove(d, t.heapIndex)
	}
}

// peek returns the Task with the soonest deadline, or nil.
func (d deadlineIndex) peek() *Task {
	if len(d) == 0 {
		return nil
	}
	return d[0]
}
