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

// Package errors defines common errors for coio.
package errors

import "errors"

var (
	// ErrTimeout occurs when a socket operation or a sleep reaches its deadline.
	ErrTimeout error = &timeoutError{}
	// ErrSocketClosed occurs when operating on a destroyed socket, or when the socket
	// is destroyed while a task is waiting on it.
	ErrSocketClosed = errors.New("coio: socket is closed")
	// ErrPeerClosed occurs when reading again from a socket whose peer has already
	// performed an orderly shutdown that has been reported once as io.EOF.
	ErrPeerClosed = errors.New("coio: connection closed by peer")
	// ErrConnReset occurs when the multiplexer reports an error or hang-up condition
	// that the underlying syscall did not turn into a more specific error.
	ErrConnReset = errors.New("coio: connection reset")
	// ErrTooManyTasks occurs when starting a task would exceed the configured task limit.
	ErrTooManyTasks = errors.New("coio: too many tasks")
	// ErrSchedulerClosed occurs when using a scheduler that is closed or closing.
	ErrSchedulerClosed = errors.New("coio: scheduler is closed")
	// ErrSchedulerRunning occurs when running or closing a scheduler whose loop is already running.
	ErrSchedulerRunning = errors.New("coio: scheduler loop is already running")
	// ErrNotInTask occurs when a blocking call is made from a loop callback
	// that is not running inside a task.
	ErrNotInTask = errors.New("coio: blocking call outside of a task while the loop is running")
	// ErrUnsupportedOp occurs when calling an operation the socket variant does not support.
	ErrUnsupportedOp = errors.New("coio: unsupported operation")
	// ErrUnsupportedProtocol occurs when trying to use a network that is not supported.
	ErrUnsupportedProtocol = errors.New("coio: only tcp/tcp4/tcp6, udp/udp4/udp6 are supported")
	// ErrUnsupportedPlatform occurs when running on a platform without epoll.
	ErrUnsupportedPlatform = errors.New("coio: unsupported platform")
	// ErrInvalidNode occurs when a registration handle no longer refers to a live node.
	ErrInvalidNode = errors.New("coio: invalid scheduler node")
	// ErrDuplicateNode occurs when a descriptor already has a live node in the scheduler.
	ErrDuplicateNode = errors.New("coio: descriptor already has a scheduler node")
	// ErrNodeBusy occurs when a task tries to wait on a socket another task is already waiting on.
	ErrNodeBusy = errors.New("coio: another task is already waiting on the socket")
	// ErrPollRetryExhausted occurs when the multiplexer failed more times in a row than allowed.
	ErrPollRetryExhausted = errors.New("coio: too many consecutive poll failures")
	// ErrInvalidGroupSize occurs when spawning a group with a negative number of schedulers.
	ErrInvalidGroupSize = errors.New("coio: the number of spawned schedulers must not be negative")
	// ErrGroupClosed occurs when using a scheduler group after it has been torn down.
	ErrGroupClosed = errors.New("coio: scheduler group is closed")
	// ErrMissingTLSConfig occurs when a secure listener is created without a TLS configuration.
	ErrMissingTLSConfig = errors.New("coio: secure socket requires a TLS configuration")
	// ErrInvalidAddress occurs when the address doesn't match the socket family.
	ErrInvalidAddress = errors.New("coio: invalid network address")
	// ErrNilTaskFunc occurs when trying to start a task with a nil function.
	ErrNilTaskFunc = errors.New("coio: nil task function is not allowed")
)

type timeoutError struct{}

func (*timeoutError) Error() string   { return "coio: i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }
