// Copyright (c) 2019 Andy Pan
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

package coio

import (
	"time"

	"github.com/coio-net/coio/pkg/logging"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/pool/goroutine"
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetDefaultLogger()
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = netpoll.InitPollEventsCap
	}
	return opts
}

// PollErrorPolicy decides what a Scheduler does when waiting on the multiplexer fails.
// A failed wait is logged and treated as a tick without events.
type PollErrorPolicy struct {
	// MaxRetries is the number of consecutive failures after which Run gives up and
	// returns an error wrapping errors.ErrPollRetryExhausted, zero retries forever.
	MaxRetries int

	// Backoff is how long the loop pauses after a failure before polling again.
	Backoff time.Duration
}

// Options are configurations for a Scheduler.
type Options struct {
	// Logger is the customized logger for logging info, if it is not set,
	// then coio will use the default logger powered by go.uber.org/zap.
	Logger logging.Logger

	// MaxEvents is the initial size of the batch of events fetched by one poll,
	// the batch grows and shrinks with the load between netpoll's bounds.
	MaxEvents int

	// MaxTasks caps the number of live tasks, zero means no limit.
	MaxTasks int

	// LockOSThread pins the goroutine calling Run to its OS thread for as long as the loop runs.
	LockOSThread bool

	// CPUAffinity pins every member spawned in a Group to CPU i % runtime.NumCPU().
	CPUAffinity bool

	// PollErrorPolicy is the policy applied when the multiplexer fails.
	PollErrorPolicy PollErrorPolicy

	// SocketTimeout is the default timeout of the sockets created on the scheduler,
	// zero means operations may wait forever.
	SocketTimeout time.Duration

	// OffloadPool runs the functions given to Scheduler.Offload, if it is not set,
	// the scheduler creates its own pool on first use and releases it in Close.
	OffloadPool *goroutine.Pool
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMaxEvents sets up the initial size of the event batch.
func WithMaxEvents(n int) Option {
	return func(opts *Options) {
		opts.MaxEvents = n
	}
}

// WithMaxTasks limits the number of live tasks.
func WithMaxTasks(n int) Option {
	return func(opts *Options) {
		opts.MaxTasks = n
	}
}

// WithLockOSThread sets up LockOSThread mode for the loop.
func WithLockOSThread(lockOSThread bool) Option {
	return func(opts *Options) {
		opts.LockOSThread = lockOSThread
	}
}

// WithCPUAffinity pins group members to CPUs.
func WithCPUAffinity(affinity bool) Option {
	return func(opts *Options) {
		opts.CPUAffinity = affinity
	}
}

// WithPollErrorPolicy sets up the policy applied on multiplexer failures.
func WithPollErrorPolicy(policy PollErrorPolicy) Option {
	return func(opts *Options) {
		opts.PollErrorPolicy = policy
	}
}

// WithSocketTimeout sets up the default timeout of sockets.
func WithSocketTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.SocketTimeout = timeout
	}
}

// WithOffloadPool sets up the worker pool used by Offload.
func WithOffloadPool(pool *goroutine.Pool) Option {
	return func(opts *Options) {
		opts.OffloadPool = pool
	}
}
