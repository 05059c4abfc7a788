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
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/socket"
)

// datagramOps implements the datagram variants, every read or write moves exactly one datagram.
type datagramOps struct{}

func (datagramOps) connect(s *Socket, sa unix.Sockaddr) error {
	if err := socket.Connect(s.fd, sa); err != nil {
		return err
	}
	s.state = SocketConnected
	s.refreshAddrs(socket.SockaddrToUDPAddr)
	return nil
}

func (datagramOps) bind(s *Socket, sa unix.Sockaddr, _ int) error {
	if err := socket.Bind(s.fd, sa); err != nil {
		return err
	}
	s.laddr = socket.SockaddrToUDPAddr(socket.LocalSockaddr(s.fd))
	return nil
}

func (datagramOps) accept(*Socket) (*Socket, error) {
	return nil, errors.ErrUnsupportedOp
}

func (datagramOps) read(s *Socket, p []byte) (int, error) {
	n, _, err := s.recvFrom(p, false)
	return n, err
}

func (datagramOps) write(s *Socket, p []byte) (int, error) {
	return s.sendTo(p, nil)
}

func (datagramOps) close(s *Socket) error {
	return s.destroy()
}

// RecvFrom reads the next datagram into p and returns the address it came from.
func (s *Socket) RecvFrom(p []byte) (int, net.Addr, error) {
	if s.state == SocketClosed {
		return 0, nil, errors.ErrSocketClosed
	}
	if !s.kind.datagram() {
		return 0, nil, errors.ErrUnsupportedOp
	}
	return s.recvFrom(p, true)
}

// SendTo sends p as one datagram to addr.
func (s *Socket) SendTo(p []byte, addr net.Addr) (int, error) {
	if s.state == SocketClosed {
		return 0, errors.ErrSocketClosed
	}
	if !s.kind.datagram() {
		return 0, errors.ErrUnsupportedOp
	}
	sa := socket.NetAddrToSockaddr(addr)
	if sa == nil {
		return 0, errors.ErrInvalidAddress
	}
	switch sa4, v4 := sa.(*unix.SockaddrInet4); {
	case v4 && s.kind.v6():
		// IPv4-mapped IPv6 address.
		sa6 := &unix.SockaddrInet6{Port: sa4.Port}
		sa6.Addr[10], sa6.Addr[11] = 0xff, 0xff
		copy(sa6.Addr[12:], sa4.Addr[:])
		sa = sa6
	case !v4 && !s.kind.v6():
		return 0, errors.ErrInvalidAddress
	}
	return s.sendTo(p, sa)
}

func (s *Socket) recvFrom(p []byte, withAddr bool) (int, net.Addr, error) {
	deadline := s.deadline()
	reset := false
	for {
		var (
			n   int
			sa  unix.Sockaddr
			err error
		)
		if withAddr {
			n, sa, err = unix.Recvfrom(s.fd, p, 0)
		} else {
			n, err = unix.Read(s.fd, p)
		}
		switch err {
		case nil:
			var from net.Addr
			if sa != nil {
				from = socket.SockaddrToUDPAddr(sa)
			}
			return n, from, nil
		case unix.EINTR:
		case unix.EAGAIN:
			if reset {
				return 0, nil, errors.ErrConnReset
			}
			if reset, err = s.await(netpoll.ModeRead, deadline); err != nil {
				return 0, nil, err
			}
		default:
			return 0, nil, os.NewSyscallError("recvfrom", err)
		}
	}
}

func (s *Socket) sendTo(p []byte, sa unix.Sockaddr) (int, error) {
	deadline := s.deadline()
	reset := false
	for {
		var err error
		if sa != nil {
			err = unix.Sendto(s.fd, p, 0, sa)
		} else {
			_, err = unix.Write(s.fd, p)
		}
		switch err {
		case nil:
			return len(p), nil
		case unix.EINTR:
		case unix.EAGAIN:
			if reset {
				return 0, errors.ErrConnReset
			}
			if reset, err = s.await(netpoll.ModeWrite, deadline); err != nil {
				return 0, err
			}
		default:
			return 0, os.NewSyscallError("sendto", err)
		}
	}
}
