// Copyright (c) 2020 The Gnet Authors. All rights reserved.
// Copyright (c) 2017 Max Riveiro
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

// Package socket provides the raw non-blocking socket plumbing of coio: creating
// descriptors, resolving addresses into sockaddrs and setting socket options.
package socket

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
)

// Option is used for setting an option on socket.
type Option[T int | string] struct {
	SetSockOpt func(int, T) error
	Opt        T
}

// ExecSockOpts applies opts to fd in order, stopping at the first failure.
func ExecSockOpts[T int | string](fd int, opts []Option[T]) error {
	for _, opt := range opts {
		if err := opt.SetSockOpt(fd, opt.Opt); err != nil {
			return err
		}
	}
	return nil
}

var listenerBacklogMaxSize = maxListenerBacklog()

func maxListenerBacklog() int {
	fd, err := os.Open("/proc/sys/net/core/somaxconn")
	if err != nil {
		return unix.SOMAXCONN
	}
	defer fd.Close()

	line, err := bufio.NewReader(fd).ReadString('\n')
	if err != nil {
		return unix.SOMAXCONN
	}
	f := strings.Fields(line)
	if len(f) < 1 {
		return unix.SOMAXCONN
	}
	n, err := strconv.Atoi(f[0])
	if err != nil || n == 0 {
		return unix.SOMAXCONN
	}
	// Linux stores the backlog in a uint16.
	if n > 1<<16-1 {
		n = 1<<16 - 1
	}
	return n
}

// Open creates a socket with O_NONBLOCK and O_CLOEXEC set.
func Open(family, sotype, proto int) (int, error) {
	fd, err := unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	return fd, os.NewSyscallError("socket", err)
}

// Bind assigns sa to fd.
func Bind(fd int, sa unix.Sockaddr) error {
	return os.NewSyscallError("bind", unix.Bind(fd, sa))
}

// Listen marks fd as passive, a non-positive backlog means the system maximum.
func Listen(fd, backlog int) error {
	if backlog <= 0 || backlog > listenerBacklogMaxSize {
		backlog = listenerBacklogMaxSize
	}
	return os.NewSyscallError("listen", unix.Listen(fd, backlog))
}

// Connect starts connecting fd to sa. unix.EINPROGRESS is returned as is, without wrapping,
// so that callers can tell an in-flight connection from a failure.
func Connect(fd int, sa unix.Sockaddr) error {
	switch err := unix.Connect(fd, sa); err {
	case nil, unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		if err == unix.EALREADY || err == unix.EINTR {
			err = unix.EINPROGRESS
		}
		return err
	default:
		return os.NewSyscallError("connect", err)
	}
}

// Accept accepts the next incoming socket along with setting
// O_NONBLOCK and O_CLOEXEC flags on it.
func Accept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED {
			return -1, nil, err
		}
		return -1, nil, os.NewSyscallError("accept4", err)
	}
	return nfd, sa, nil
}

// SocketError fetches and clears the pending error of fd.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if errno != 0 {
		return os.NewSyscallError("connect", unix.Errno(errno))
	}
	return nil
}

// ResolveAddr resolves address for network (tcp, tcp4, tcp6, udp, udp4, udp6) into the
// sockaddr to hand to the kernel, the family to create the socket with and the resolved
// net.Addr. ipv6only reports whether the v6 socket must refuse IPv4-mapped traffic.
//
// Host names are resolved through the Go resolver and may block the calling thread.
func ResolveAddr(network, address string) (sa unix.Sockaddr, family int, addr net.Addr, ipv6only bool, err error) {
	var (
		ip   net.IP
		port int
		zone string
	)
	switch network {
	case "tcp", "tcp4", "tcp6":
		var tcpAddr *net.TCPAddr
		if tcpAddr, err = net.ResolveTCPAddr(network, address); err != nil {
			return
		}
		ip, port, zone, addr = tcpAddr.IP, tcpAddr.Port, tcpAddr.Zone, tcpAddr
	case "udp", "udp4", "udp6":
		var udpAddr *net.UDPAddr
		if udpAddr, err = net.ResolveUDPAddr(network, address); err != nil {
			return
		}
		ip, port, zone, addr = udpAddr.IP, udpAddr.Port, udpAddr.Zone, udpAddr
	default:
		err = errors.ErrUnsupportedProtocol
		return
	}

	switch {
	case strings.HasSuffix(network, "4") || (ip.To4() != nil && zone == "" && !strings.HasSuffix(network, "6")):
		var sa4 unix.SockaddrInet4
		if sa4, err = ipToSockaddrInet4(ip, port); err != nil {
			return
		}
		sa, family = &sa4, unix.AF_INET
	default:
		var sa6 unix.SockaddrInet6
		if sa6, err = ipToSockaddrInet6(ip, port, zone); err != nil {
			return
		}
		sa, family = &sa6, unix.AF_INET6
		ipv6only = strings.HasSuffix(network, "6")
	}
	return
}
