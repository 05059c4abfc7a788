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
	"crypto/tls"
	"time"
)

// SocketOption is a function that will set up a socket option.
type SocketOption func(opts *SocketOptions)

// SocketOptions are configurations applied when a socket is created. Sockets accepted
// from a listener inherit the options of the listener.
type SocketOptions struct {
	// ReusePort indicates whether to set up the SO_REUSEPORT socket option, which lets
	// the listeners of several schedulers share one port.
	ReusePort bool

	// ReuseAddr indicates whether to set up the SO_REUSEADDR socket option.
	ReuseAddr bool

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	TCPNoDelay bool

	// TCPKeepAlive sets up a duration for (SO_KEEPALIVE) socket option.
	TCPKeepAlive time.Duration

	// SocketRecvBuffer sets the maximum socket receive buffer in bytes.
	SocketRecvBuffer int

	// SocketSendBuffer sets the maximum socket send buffer in bytes.
	SocketSendBuffer int

	// Timeout bounds every blocking operation of the socket, zero means the
	// default timeout of the scheduler.
	Timeout time.Duration

	// TLSConfig is the configuration of secure sockets.
	TLSConfig *tls.Config
}

func loadSocketOptions(defaultTimeout time.Duration, options ...SocketOption) *SocketOptions {
	opts := &SocketOptions{Timeout: defaultTimeout}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// WithReusePort sets up SO_REUSEPORT socket option.
func WithReusePort(reusePort bool) SocketOption {
	return func(opts *SocketOptions) {
		opts.ReusePort = reusePort
	}
}

// WithReuseAddr sets up SO_REUSEADDR socket option.
func WithReuseAddr(reuseAddr bool) SocketOption {
	return func(opts *SocketOptions) {
		opts.ReuseAddr = reuseAddr
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(noDelay bool) SocketOption {
	return func(opts *SocketOptions) {
		opts.TCPNoDelay = noDelay
	}
}

// WithTCPKeepAlive sets up the SO_KEEPALIVE socket option with duration.
func WithTCPKeepAlive(tcpKeepAlive time.Duration) SocketOption {
	return func(opts *SocketOptions) {
		opts.TCPKeepAlive = tcpKeepAlive
	}
}

// WithRecvBuffer sets the maximum socket receive buffer in bytes.
func WithRecvBuffer(recvBuf int) SocketOption {
	return func(opts *SocketOptions) {
		opts.SocketRecvBuffer = recvBuf
	}
}

// WithSendBuffer sets the maximum socket send buffer in bytes.
func WithSendBuffer(sendBuf int) SocketOption {
	return func(opts *SocketOptions) {
		opts.SocketSendBuffer = sendBuf
	}
}

// WithTimeout bounds every blocking operation of the socket.
func WithTimeout(timeout time.Duration) SocketOption {
	return func(opts *SocketOptions) {
		opts.Timeout = timeout
	}
}

// WithTLSConfig sets up the configuration of secure sockets.
func WithTLSConfig(config *tls.Config) SocketOption {
	return func(opts *SocketOptions) {
		opts.TLSConfig = config
	}
}
