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
	"crypto/tls"
	"net"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/socket"
)

// ListenTCP creates a plain stream Socket listening on address. network is one of
// "tcp", "tcp4" or "tcp6", the IPv4 or IPv6 variant is picked from the resolved address.
// SO_REUSEADDR is set unless the options turn it off.
func ListenTCP(sched *Scheduler, network, address string, opts ...SocketOption) (*Socket, error) {
	return listenStream(sched, network, address, false, opts)
}

// ListenTLS creates a secure stream Socket listening on address. Accepted sockets
// run the server handshake with config.
func ListenTLS(sched *Scheduler, network, address string, config *tls.Config, opts ...SocketOption) (*Socket, error) {
	if config == nil {
		return nil, errors.ErrMissingTLSConfig
	}
	return listenStream(sched, network, address, true, append(opts, WithTLSConfig(config)))
}

// DialTCP connects a plain stream Socket to address.
func DialTCP(sched *Scheduler, network, address string, opts ...SocketOption) (*Socket, error) {
	return dial(sched, network, address, "tcp", false, opts)
}

// DialTLS connects a secure stream Socket to address and completes the client
// handshake. The server name defaults to the host of address.
func DialTLS(sched *Scheduler, network, address string, config *tls.Config, opts ...SocketOption) (*Socket, error) {
	if config != nil {
		opts = append(opts, WithTLSConfig(config))
	}
	return dial(sched, network, address, "tcp", true, opts)
}

// ListenUDP creates a datagram Socket bound to address.
func ListenUDP(sched *Scheduler, network, address string, opts ...SocketOption) (*Socket, error) {
	s, sa, err := open(sched, network, address, "udp", false, opts)
	if err != nil {
		return nil, err
	}
	if err = s.ops.bind(s, sa, 0); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// DialUDP creates a datagram Socket connected to address.
func DialUDP(sched *Scheduler, network, address string, opts ...SocketOption) (*Socket, error) {
	return dial(sched, network, address, "udp", false, opts)
}

func listenStream(sched *Scheduler, network, address string, secure bool, opts []SocketOption) (*Socket, error) {
	s, sa, err := open(sched, network, address, "tcp", secure, append([]SocketOption{WithReuseAddr(true)}, opts...))
	if err != nil {
		return nil, err
	}
	if err = s.ops.bind(s, sa, 0); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func dial(sched *Scheduler, network, address, proto string, secure bool, opts []SocketOption) (*Socket, error) {
	s, sa, err := open(sched, network, address, proto, secure, opts)
	if err != nil {
		return nil, err
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		s.serverName = host
	}
	if err = s.ops.connect(s, sa); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// open resolves address and creates the Socket of the matching variant.
func open(sched *Scheduler, network, address, proto string, secure bool, opts []SocketOption) (*Socket, unix.Sockaddr, error) {
	if !strings.HasPrefix(network, proto) {
		return nil, nil, errors.ErrUnsupportedProtocol
	}
	sa, family, _, ipv6only, err := socket.ResolveAddr(network, address)
	if err != nil {
		return nil, nil, err
	}
	s, err := NewSocket(sched, kindOf(family, proto == "udp", secure), opts...)
	if err != nil {
		return nil, nil, err
	}
	if ipv6only {
		if err = socket.SetIPv6Only(s.fd, 1); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
	}
	return s, sa, nil
}
