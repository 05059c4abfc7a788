// Copyright (c) 2021 Andy Pan
// Copyright (c) 2026 The Coio Authors. All rights reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package queue

import "sync"

// Func is the callback carried by a Job and executed on the thread that drains the queue.
type Func func(any) error

// Job is a wrapper that contains a function and its argument.
type Job struct {
	Run Func
	Arg any
}

var jobPool = sync.Pool{New: func() any { return new(Job) }}

// GetJob gets a cached Job from pool.
func GetJob() *Job {
	return jobPool.Get().(*Job)
}

// PutJob puts the drained Job back in pool.
func PutJob(job *Job) {
	job.Run, job.Arg = nil, nil
	jobPool.Put(job)
}

// AsyncJobQueue is a queue storing jobs submitted from other goroutines.
type AsyncJobQueue interface {
	Enqueue(*Job)
	Dequeue() *Job
	IsEmpty() bool
	Length() int32
}
