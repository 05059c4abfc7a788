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
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/bs"
	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/pool/bytebuffer"
	"github.com/coio-net/coio/pkg/socket"
)

// Kind selects the variant of a Socket.
type Kind uint8

const (
	// KindTCP4 is a plain stream socket over IPv4.
	KindTCP4 Kind = iota
	// KindTCP6 is a plain stream socket over IPv6.
	KindTCP6
	// KindTLS4 is a secure stream socket over IPv4.
	KindTLS4
	// KindTLS6 is a secure stream socket over IPv6.
	KindTLS6
	// KindUDP4 is a datagram socket over IPv4.
	KindUDP4
	// KindUDP6 is a datagram socket over IPv6.
	KindUDP6
)

var kindNames = [...]string{"tcp4", "tcp6", "tls4", "tls6", "udp4", "udp6"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) valid() bool { return k <= KindUDP6 }

func (k Kind) v6() bool { return k == KindTCP6 || k == KindTLS6 || k == KindUDP6 }

func (k Kind) secure() bool { return k == KindTLS4 || k == KindTLS6 }

func (k Kind) datagram() bool { return k == KindUDP4 || k == KindUDP6 }

func (k Kind) family() int {
	if k.v6() {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// network is the name under which addresses for the variant are resolved.
func (k Kind) network() string {
	switch {
	case k.datagram() && k.v6():
		return "udp6"
	case k.datagram():
		return "udp4"
	case k.v6():
		return "tcp6"
	default:
		return "tcp4"
	}
}

func (k Kind) ops() socketOps {
	switch {
	case k.datagram():
		return datagramOps{}
	case k.secure():
		return tlsOps{}
	default:
		return streamOps{}
	}
}

func kindOf(family int, datagram, secure bool) Kind {
	var k Kind
	switch {
	case datagram:
		k = KindUDP4
	case secure:
		k = KindTLS4
	default:
		k = KindTCP4
	}
	if family == unix.AF_INET6 {
		k++
	}
	return k
}

// SocketState is the connection state of a Socket.
type SocketState uint8

const (
	// SocketUnconnected is the state of a new socket.
	SocketUnconnected SocketState = iota
	// SocketListening is the state of a stream socket accepting connections.
	SocketListening
	// SocketConnecting is the state of a stream socket waiting for its connection to complete.
	SocketConnecting
	// SocketConnected is the state of a connected or accepted socket.
	SocketConnected
	// SocketClosed is the state of a closed socket.
	SocketClosed
)

func (s SocketState) String() string {
	switch s {
	case SocketUnconnected:
		return "unconnected"
	case SocketListening:
		return "listening"
	case SocketConnecting:
		return "connecting"
	case SocketConnected:
		return "connected"
	case SocketClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// socketOps is the behavior of a Socket variant.
type socketOps interface {
	connect(s *Socket, sa unix.Sockaddr) error
	bind(s *Socket, sa unix.Sockaddr, backlog int) error
	accept(s *Socket) (*Socket, error)
	read(s *Socket, p []byte) (int, error)
	write(s *Socket, p []byte) (int, error)
	close(s *Socket) error
}

// Socket is a non-blocking descriptor whose blocking-looking operations suspend the
// calling Task until they can make progress. A Socket belongs to the Scheduler it was
// created on and must only be used by that Scheduler's tasks, or by the goroutine
// driving the Scheduler while its loop is not running.
type Socket struct {
	fd      int
	sched   *Scheduler
	kind    Kind
	ops     socketOps
	opts    *SocketOptions
	node    *node
	timeout time.Duration
	state   SocketState
	eof     bool

	laddr net.Addr
	raddr net.Addr

	tls        *tls.Conn
	serverName string
}

// NewSocket creates an unconnected Socket of the given variant on sched.
func NewSocket(sched *Scheduler, kind Kind, opts ...SocketOption) (*Socket, error) {
	if !kind.valid() {
		return nil, errors.ErrUnsupportedProtocol
	}
	if sched.closing || sched.isClosed() {
		return nil, errors.ErrSchedulerClosed
	}
	sotype, proto := unix.SOCK_STREAM, unix.IPPROTO_TCP
	if kind.datagram() {
		sotype, proto = unix.SOCK_DGRAM, unix.IPPROTO_UDP
	}
	fd, err := socket.Open(kind.family(), sotype, proto)
	if err != nil {
		return nil, err
	}
	s := newSocket(sched, kind, fd, loadSocketOptions(sched.opts.SocketTimeout, opts...))
	if err = s.setSockOpts(true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func newSocket(sched *Scheduler, kind Kind, fd int, opts *SocketOptions) *Socket {
	return &Socket{
		fd:      fd,
		sched:   sched,
		kind:    kind,
		ops:     kind.ops(),
		opts:    opts,
		timeout: opts.Timeout,
	}
}

func (s *Socket) setSockOpts(fresh bool) error {
	var sockOpts []socket.Option[int]
	if fresh {
		if s.opts.ReuseAddr {
			sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetReuseAddr, Opt: 1})
		}
		if s.opts.ReusePort {
			sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetReuseport, Opt: 1})
		}
		if s.kind.datagram() {
			sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetBroadcast, Opt: 1})
		}
	}
	if !s.kind.datagram() {
		if s.opts.TCPNoDelay {
			sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetNoDelay, Opt: 1})
		}
		if s.opts.TCPKeepAlive > 0 {
			secs := int(s.opts.TCPKeepAlive / time.Second)
			if secs == 0 {
				secs = 1
			}
			sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetKeepAlivePeriod, Opt: secs})
		}
	}
	if s.opts.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetRecvBuffer, Opt: s.opts.SocketRecvBuffer})
	}
	if s.opts.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option[int]{SetSockOpt: socket.SetSendBuffer, Opt: s.opts.SocketSendBuffer})
	}
	return socket.ExecSockOpts(s.fd, sockOpts)
}

// Fd returns the descriptor of the Socket.
func (s *Socket) Fd() int { return s.fd }

// Kind returns the variant of the Socket.
func (s *Socket) Kind() Kind { return s.kind }

// State returns the connection state of the Socket.
func (s *Socket) State() SocketState { return s.state }

// Scheduler returns the Scheduler owning the Socket.
func (s *Socket) Scheduler() *Scheduler { return s.sched }

// LocalAddr returns the local address of a bound or connected Socket.
func (s *Socket) LocalAddr() net.Addr { return s.laddr }

// RemoteAddr returns the address of the peer of a connected Socket.
func (s *Socket) RemoteAddr() net.Addr { return s.raddr }

// Timeout returns the duration bounding each blocking operation.
func (s *Socket) Timeout() time.Duration { return s.timeout }

// SetTimeout bounds each subsequent blocking operation to d, zero disables the bound.
// The bound applies to the whole operation, not to each wait it makes.
func (s *Socket) SetTimeout(d time.Duration) { s.timeout = d }

// Connect connects the Socket to address, suspending the calling Task until the
// connection is established. Secure sockets also complete the client handshake.
func (s *Socket) Connect(address string) error {
	if s.state == SocketClosed {
		return errors.ErrSocketClosed
	}
	sa, err := s.resolve(address)
	if err != nil {
		return err
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		s.serverName = host
	}
	return s.ops.connect(s, sa)
}

// Bind binds the Socket to address, stream sockets start listening with the given
// backlog, a non-positive backlog means the system maximum.
func (s *Socket) Bind(address string, backlog int) error {
	if s.state == SocketClosed {
		return errors.ErrSocketClosed
	}
	sa, err := s.resolve(address)
	if err != nil {
		return err
	}
	return s.ops.bind(s, sa, backlog)
}

// Accept waits for the next connection on a listening stream Socket. The returned
// Socket has the same variant as the listener.
func (s *Socket) Accept() (*Socket, error) {
	if s.state == SocketClosed {
		return nil, errors.ErrSocketClosed
	}
	return s.ops.accept(s)
}

// Read reads up to len(p) bytes, suspending the calling Task until some data arrives.
// On a stream Socket, the orderly shutdown of the peer is reported once as io.EOF,
// subsequent reads fail with errors.ErrPeerClosed.
func (s *Socket) Read(p []byte) (int, error) {
	if s.state == SocketClosed {
		return 0, errors.ErrSocketClosed
	}
	return s.ops.read(s, p)
}

// Write writes all of p, suspending the calling Task whenever the send buffer is full.
func (s *Socket) Write(p []byte) (int, error) {
	if s.state == SocketClosed {
		return 0, errors.ErrSocketClosed
	}
	return s.ops.write(s, p)
}

// WriteString writes str like Write without copying it.
func (s *Socket) WriteString(str string) (int, error) {
	return s.Write(bs.StringToBytes(str))
}

// Writev gathers bufs and writes them at once, a datagram Socket sends them as a single datagram.
func (s *Socket) Writev(bufs [][]byte) (int, error) {
	buf := bytebuffer.Gather(bufs)
	defer bytebuffer.Put(buf)
	return s.Write(buf.B)
}

// Close deregisters the Socket from its Scheduler and closes its descriptor. A Task
// waiting on the Socket resumes with errors.ErrSocketClosed. Closing twice is a no-op.
func (s *Socket) Close() error {
	if s.state == SocketClosed {
		return nil
	}
	return s.ops.close(s)
}

func (s *Socket) resolve(address string) (unix.Sockaddr, error) {
	sa, family, _, _, err := socket.ResolveAddr(s.kind.network(), address)
	if err != nil {
		return nil, err
	}
	if family != s.kind.family() {
		return nil, errors.ErrInvalidAddress
	}
	return sa, nil
}

func (s *Socket) deadline() time.Time {
	if s.timeout > 0 {
		return time.Now().Add(s.timeout)
	}
	return time.Time{}
}

// await suspends until the Socket is ready for mode or the deadline passes. reset
// reports an error or hang-up condition, the caller retries its syscall to learn
// the actual error.
func (s *Socket) await(mode netpoll.Mode, deadline time.Time) (reset bool, err error) {
	if s.node == nil {
		if s.node, err = s.sched.addNode(s.fd); err != nil {
			return
		}
	}
	var reason WakeReason
	if reason, err = s.sched.wait(s.node, mode, deadline); err != nil {
		return
	}
	switch {
	case s.state == SocketClosed:
		err = errors.ErrSocketClosed
	case reason == WakeTimeout:
		err = errors.ErrTimeout
	case reason == WakeReset && s.sched.closing:
		err = errors.ErrSchedulerClosed
	default:
		reset = reason == WakeReset
	}
	return
}

// destroy invalidates the node of the Socket, waking up its waiter, and closes the descriptor.
func (s *Socket) destroy() error {
	if s.state == SocketClosed {
		return nil
	}
	s.state = SocketClosed
	if s.node != nil {
		s.sched.releaseNode(s.node)
		s.node = nil
	}
	return os.NewSyscallError("close", unix.Close(s.fd))
}

func (s *Socket) refreshAddrs(toAddr func(unix.Sockaddr) net.Addr) {
	if sa := socket.LocalSockaddr(s.fd); sa != nil {
		s.laddr = toAddr(sa)
	}
	if sa := socket.PeerSockaddr(s.fd); sa != nil {
		s.raddr = toAddr(sa)
	}
}
