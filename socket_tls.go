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
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
)

// tlsOps implements the secure stream variants on top of the plain stream
// operations: crypto/tls drives the record layer and every read or write it makes
// on the descriptor suspends the calling Task like a plain read or write would.
type tlsOps struct{}

func (tlsOps) connect(s *Socket, sa unix.Sockaddr) error {
	if err := (streamOps{}).connect(s, sa); err != nil {
		return err
	}
	s.tls = tls.Client(&plainConn{s: s}, s.clientConfig())
	return s.tls.Handshake()
}

func (tlsOps) bind(s *Socket, sa unix.Sockaddr, backlog int) error {
	if s.opts.TLSConfig == nil {
		return errors.ErrMissingTLSConfig
	}
	return (streamOps{}).bind(s, sa, backlog)
}

// accept returns a Socket whose server handshake runs on its first read or write,
// or on an explicit call to Handshake.
func (tlsOps) accept(s *Socket) (*Socket, error) {
	c, err := s.acceptStream()
	if err != nil {
		return nil, err
	}
	c.tls = tls.Server(&plainConn{s: c}, s.opts.TLSConfig)
	return c, nil
}

func (tlsOps) read(s *Socket, p []byte) (int, error) {
	if s.tls == nil {
		return 0, os.NewSyscallError("read", unix.ENOTCONN)
	}
	n, err := s.tls.Read(p)
	if err == io.EOF {
		if s.eof {
			return n, errors.ErrPeerClosed
		}
		s.eof = true
	}
	return n, err
}

func (tlsOps) write(s *Socket, p []byte) (int, error) {
	if s.tls == nil {
		return 0, os.NewSyscallError("write", unix.ENOTCONN)
	}
	return s.tls.Write(p)
}

// close sends close_notify on a best-effort basis before closing the descriptor.
func (tlsOps) close(s *Socket) error {
	if s.tls != nil && s.tls.ConnectionState().HandshakeComplete {
		_ = s.tls.CloseWrite()
	}
	return s.destroy()
}

// Handshake runs the TLS handshake of a secure Socket if it has not run yet.
func (s *Socket) Handshake() error {
	if s.state == SocketClosed {
		return errors.ErrSocketClosed
	}
	if !s.kind.secure() {
		return errors.ErrUnsupportedOp
	}
	if s.tls == nil {
		return os.NewSyscallError("handshake", unix.ENOTCONN)
	}
	return s.tls.Handshake()
}

// ConnectionState returns basic TLS details about the connection of a secure Socket.
func (s *Socket) ConnectionState() (tls.ConnectionState, bool) {
	if s.tls == nil {
		return tls.ConnectionState{}, false
	}
	return s.tls.ConnectionState(), true
}

func (s *Socket) clientConfig() *tls.Config {
	var config *tls.Config
	if s.opts.TLSConfig != nil {
		config = s.opts.TLSConfig.Clone()
	} else {
		config = new(tls.Config)
	}
	if config.ServerName == "" {
		config.ServerName = s.serverName
	}
	return config
}

// plainConn exposes the plain stream operations of a Socket to crypto/tls.
type plainConn struct {
	s   *Socket
	eof bool
}

func (c *plainConn) Read(p []byte) (int, error) { return c.s.readStream(p, &c.eof) }

func (c *plainConn) Write(p []byte) (int, error) { return c.s.writeStream(p) }

// Close is a no-op, the descriptor belongs to the Socket.
func (c *plainConn) Close() error { return nil }

func (c *plainConn) LocalAddr() net.Addr { return c.s.laddr }

func (c *plainConn) RemoteAddr() net.Addr { return c.s.raddr }

// The timeout of the Socket bounds every operation, deadlines are ignored.
func (c *plainConn) SetDeadline(time.Time) error      { return nil }
func (c *plainConn) SetReadDeadline(time.Time) error  { return nil }
func (c *plainConn) SetWriteDeadline(time.Time) error { return nil }
