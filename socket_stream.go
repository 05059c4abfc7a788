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
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/socket"
)

// streamOps implements the plain stream variants.
type streamOps struct{}

func (streamOps) connect(s *Socket, sa unix.Sockaddr) error {
	if s.state != SocketUnconnected {
		return os.NewSyscallError("connect", unix.EISCONN)
	}
	s.state = SocketConnecting
	if err := s.connectStream(sa); err != nil {
		if s.state == SocketConnecting {
			s.state = SocketUnconnected
		}
		return err
	}
	s.state = SocketConnected
	s.refreshAddrs(socket.SockaddrToTCPAddr)
	return nil
}

func (streamOps) bind(s *Socket, sa unix.Sockaddr, backlog int) error {
	if err := socket.Bind(s.fd, sa); err != nil {
		return err
	}
	if err := socket.Listen(s.fd, backlog); err != nil {
		return err
	}
	s.state = SocketListening
	s.laddr = socket.SockaddrToTCPAddr(socket.LocalSockaddr(s.fd))
	return nil
}

func (streamOps) accept(s *Socket) (*Socket, error) {
	return s.acceptStream()
}

func (streamOps) read(s *Socket, p []byte) (int, error) {
	return s.readStream(p, &s.eof)
}

func (streamOps) write(s *Socket, p []byte) (int, error) {
	return s.writeStream(p)
}

func (streamOps) close(s *Socket) error {
	return s.destroy()
}

func (s *Socket) connectStream(sa unix.Sockaddr) error {
	err := socket.Connect(s.fd, sa)
	if err != unix.EINPROGRESS {
		return err
	}
	deadline := s.deadline()
	for {
		reset, err := s.await(netpoll.ModeWrite, deadline)
		if err != nil {
			return err
		}
		if err = socket.SocketError(s.fd); err != nil {
			return err
		}
		if _, err = unix.Getpeername(s.fd); err == nil {
			return nil
		}
		if reset {
			return errors.ErrConnReset
		}
	}
}

func (s *Socket) acceptStream() (*Socket, error) {
	if s.state != SocketListening {
		return nil, os.NewSyscallError("accept4", unix.EINVAL)
	}
	deadline := s.deadline()
	for {
		fd, sa, err := socket.Accept(s.fd)
		switch err {
		case nil:
			return s.adopt(fd, sa)
		case unix.EINTR, unix.ECONNABORTED:
		case unix.EAGAIN:
			if _, err = s.await(netpoll.ModeRead, deadline); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// adopt wraps an accepted descriptor into a connected Socket of the listener's variant.
func (s *Socket) adopt(fd int, sa unix.Sockaddr) (*Socket, error) {
	c := newSocket(s.sched, s.kind, fd, s.opts)
	if err := c.setSockOpts(false); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	c.state = SocketConnected
	c.raddr = socket.SockaddrToTCPAddr(sa)
	c.laddr = socket.SockaddrToTCPAddr(socket.LocalSockaddr(fd))
	return c, nil
}

// readStream reads from the descriptor. eof records that the orderly shutdown of the
// peer has been reported already.
func (s *Socket) readStream(p []byte, eof *bool) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	deadline := s.deadline()
	reset := false
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case n > 0:
			return n, nil
		case err == nil:
			if *eof {
				return 0, errors.ErrPeerClosed
			}
			*eof = true
			return 0, io.EOF
		case err == unix.EINTR:
		case err == unix.EAGAIN:
			if reset {
				return 0, errors.ErrConnReset
			}
			if reset, err = s.await(netpoll.ModeRead, deadline); err != nil {
				return 0, err
			}
		default:
			return 0, os.NewSyscallError("read", err)
		}
	}
}

func (s *Socket) writeStream(p []byte) (int, error) {
	deadline := s.deadline()
	reset := false
	written := 0
	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		if n > 0 {
			written += n
			reset = false
			continue
		}
		switch err {
		case nil:
			return written, io.ErrShortWrite
		case unix.EINTR:
		case unix.EAGAIN:
			if reset {
				return written, errors.ErrConnReset
			}
			if reset, err = s.await(netpoll.ModeWrite, deadline); err != nil {
				return written, err
			}
		default:
			return written, os.NewSyscallError("write", err)
		}
	}
	return written, nil
}
