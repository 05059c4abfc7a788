//go:build linux

package coio

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/netpoll"
	"github.com/coio-net/coio/pkg/socket"
)

func mustListen(t *testing.T, s *Scheduler, network, address string, opts ...SocketOption) *Socket {
	t.Helper()
	ln, err := ListenTCP(s, network, address, opts...)
	require.NoError(t, err)
	require.Equal(t, SocketListening, ln.State())
	return ln
}

func TestSocketReadWriteOrder(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	var serverErrs []error
	_, err := s.Go(func(s *Scheduler) error {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		assert.NoError(t, ln.Close())
		_, err = s.Go(func(*Scheduler) error {
			defer conn.Close() //nolint:errcheck
			n, err := conn.Write([]byte("abcdef"))
			assert.NoError(t, err)
			assert.Equal(t, 6, n)

			var b [1]byte
			n, err = conn.Read(b[:])
			assert.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, byte('b'), b[0])

			_, err = conn.Read(b[:])
			serverErrs = append(serverErrs, err)
			_, err = conn.Read(b[:])
			serverErrs = append(serverErrs, err)
			return nil
		})
		return err
	})
	require.NoError(t, err)

	client, err := s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr)
		if err != nil {
			return err
		}
		assert.Equal(t, SocketConnected, conn.State())
		assert.Equal(t, addr, conn.RemoteAddr().String())
		for cur := byte('a'); cur <= 'f'; cur++ {
			var b [1]byte
			n, err := conn.Read(b[:])
			if !assert.NoError(t, err) || !assert.Equal(t, 1, n) {
				break
			}
			assert.Equal(t, cur, b[0])
		}
		_, err = conn.Write([]byte("b"))
		assert.NoError(t, err)
		return conn.Close()
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.NoError(t, client.Err())
	require.Len(t, serverErrs, 2)
	assert.ErrorIs(t, serverErrs[0], io.EOF)
	assert.ErrorIs(t, serverErrs[1], errors.ErrPeerClosed)
	assert.Zero(t, s.Stats().Nodes)
}

func TestSocketWritevAndReadFull(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	var got []byte
	_, err := s.Go(func(*Scheduler) error {
		defer ln.Close() //nolint:errcheck
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		got, err = io.ReadAll(conn)
		return err
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr, WithTCPNoDelay(true))
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		n, err := conn.Writev([][]byte{[]byte("hello"), []byte(", "), []byte("coio")})
		assert.Equal(t, 11, n)
		if err != nil {
			return err
		}
		_, err = conn.WriteString("!")
		return err
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.Equal(t, "hello, coio!", string(got))
}

func TestSocketLargeWrite(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	payload := make([]byte, 8<<20)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var got []byte
	_, err := s.Go(func(*Scheduler) error {
		defer ln.Close() //nolint:errcheck
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		got, err = io.ReadAll(conn)
		return err
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr, WithSendBuffer(64<<10))
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		n, err := conn.Write(payload)
		assert.Equal(t, len(payload), n)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.Equal(t, payload, got)
}

func TestSocketCloseWakesWaiter(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	var (
		conn    *Socket
		readErr error
	)
	_, err := s.Go(func(s *Scheduler) error {
		defer ln.Close() //nolint:errcheck
		peer, err := ln.Accept()
		if err != nil {
			return err
		}
		defer peer.Close() //nolint:errcheck
		// Keep the peer silent until the reader gave up.
		for readErr == nil {
			if err = s.Sleep(5 * time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		c, err := DialTCP(s, "tcp4", addr)
		if err != nil {
			return err
		}
		conn = c
		_, err = s.Go(func(s *Scheduler) error {
			if err := s.Sleep(20 * time.Millisecond); err != nil {
				return err
			}
			// The sleeping server and the reader.
			assert.Equal(t, 2, s.Stats().Waiting)
			nodes := s.Stats().Nodes
			assert.NoError(t, conn.Close())
			assert.NoError(t, conn.Close())
			assert.Equal(t, nodes-1, s.Stats().Nodes)
			return nil
		})
		if err != nil {
			return err
		}
		var b [1]byte
		_, readErr = conn.Read(b[:])
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.ErrorIs(t, readErr, errors.ErrSocketClosed)
	assert.Equal(t, SocketClosed, conn.State())

	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errors.ErrSocketClosed)
	_, err = conn.Write([]byte("x"))
	assert.ErrorIs(t, err, errors.ErrSocketClosed)
	assert.ErrorIs(t, conn.Connect(addr), errors.ErrSocketClosed)
	assert.Zero(t, s.Stats().Nodes)
}

func TestSchedulerCloseWithOpenSocket(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")

	var acceptErr error
	_, err := s.Go(func(*Scheduler) error {
		_, acceptErr = ln.Accept()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Run())
	assert.Equal(t, 1, s.Stats().Waiting)
	require.NotNil(t, ln.node)
	assert.True(t, ln.node.registered)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, acceptErr, errors.ErrSchedulerClosed)
	assert.False(t, ln.node.registered)
	assert.Equal(t, netpoll.ModeNone, ln.node.interest)
	assert.Equal(t, 1, s.Stats().Nodes)

	// The multiplexer is gone, closing the descriptor must not touch it.
	assert.NoError(t, ln.Close())
	assert.Zero(t, s.Stats().Nodes)
}

func TestSocketPeerReset(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	var (
		readErr  error
		readDone bool
	)
	_, err := s.Go(func(s *Scheduler) error {
		defer ln.Close() //nolint:errcheck
		peer, err := ln.Accept()
		if err != nil {
			return err
		}
		// Let the reader block first.
		if err = s.Sleep(20 * time.Millisecond); err != nil {
			return err
		}
		assert.False(t, readDone)
		assert.NoError(t, socket.SetLinger(peer.Fd(), 0))
		return peer.Close()
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr)
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		var b [1]byte
		_, readErr = conn.Read(b[:])
		readDone = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	require.True(t, readDone)
	assert.ErrorIs(t, readErr, syscall.ECONNRESET)
	assert.NotErrorIs(t, readErr, io.EOF)
	assert.Zero(t, s.Stats().Nodes)
}

func TestSocketResetWithoutPendingError(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()

	var (
		readErr  error
		readDone bool
	)
	_, err := s.Go(func(s *Scheduler) error {
		defer ln.Close() //nolint:errcheck
		peer, err := ln.Accept()
		if err != nil {
			return err
		}
		defer peer.Close() //nolint:errcheck
		for !readDone {
			if err = s.Sleep(5 * time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr)
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		_, err = s.Go(func(s *Scheduler) error {
			if err := s.Sleep(20 * time.Millisecond); err != nil {
				return err
			}
			// A spurious error condition: the retried read finds nothing to report.
			s.dispatch(conn.node, netpoll.ModeReset)
			return nil
		})
		if err != nil {
			return err
		}
		var b [1]byte
		_, readErr = conn.Read(b[:])
		readDone = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.ErrorIs(t, readErr, errors.ErrConnReset)
}

func TestSocketTimeout(t *testing.T) {
	const timeout = 100 * time.Millisecond

	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0", WithTimeout(2*timeout))
	addr := ln.LocalAddr().String()

	var (
		readErr, acceptErr error
		waited             time.Duration
	)
	_, err := s.Go(func(s *Scheduler) error {
		defer ln.Close() //nolint:errcheck
		peer, err := ln.Accept()
		if err != nil {
			return err
		}
		defer peer.Close() //nolint:errcheck
		_, acceptErr = ln.Accept()
		return nil
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTCP(s, "tcp4", addr, WithTimeout(timeout))
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		assert.Equal(t, timeout, conn.Timeout())
		start := time.Now()
		_, readErr = conn.Read(make([]byte, 1))
		waited = time.Since(start)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.ErrorIs(t, readErr, errors.ErrTimeout)
	assert.ErrorIs(t, acceptErr, errors.ErrTimeout)
	var ne net.Error
	if assert.ErrorAs(t, readErr, &ne) {
		assert.True(t, ne.Timeout())
	}
	assert.GreaterOrEqual(t, waited, timeout)
	assert.Less(t, waited, timeout+500*time.Millisecond)
}

func TestSocketSchedulerTimeout(t *testing.T) {
	s := mustScheduler(t, WithSocketTimeout(time.Second))
	sock, err := NewSocket(s, KindTCP4)
	require.NoError(t, err)
	defer sock.Close() //nolint:errcheck

	assert.Equal(t, time.Second, sock.Timeout())
	sock.SetTimeout(0)
	assert.Zero(t, sock.Timeout())
}

func TestSocketConnectRefused(t *testing.T) {
	s := mustScheduler(t)
	ln := mustListen(t, s, "tcp4", "127.0.0.1:0")
	addr := ln.LocalAddr().String()
	require.NoError(t, ln.Close())

	_, err := s.Go(func(s *Scheduler) error {
		_, err := DialTCP(s, "tcp4", addr)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Run())
	assert.Zero(t, s.Stats().Nodes)
}

func TestSocketInvalidArguments(t *testing.T) {
	s := mustScheduler(t)

	_, err := NewSocket(s, Kind(42))
	assert.ErrorIs(t, err, errors.ErrUnsupportedProtocol)
	_, err = DialTCP(s, "udp4", "127.0.0.1:53")
	assert.ErrorIs(t, err, errors.ErrUnsupportedProtocol)
	_, err = ListenUDP(s, "tcp4", "127.0.0.1:0")
	assert.ErrorIs(t, err, errors.ErrUnsupportedProtocol)
	_, err = ListenTLS(s, "tcp4", "127.0.0.1:0", nil)
	assert.ErrorIs(t, err, errors.ErrMissingTLSConfig)

	sock, err := NewSocket(s, KindTCP4)
	require.NoError(t, err)
	assert.Equal(t, SocketUnconnected, sock.State())
	assert.Error(t, sock.Connect("[::1]:80"))
	_, err = sock.Accept()
	assert.Error(t, err, "accepting on a socket that is not listening")
	assert.NoError(t, sock.Close())
	assert.NoError(t, sock.Close())
	assert.Equal(t, SocketClosed, sock.State())

	plain, err := NewSocket(s, KindTCP4)
	require.NoError(t, err)
	defer plain.Close() //nolint:errcheck
	_, err = plain.SendTo([]byte("x"), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9})
	assert.ErrorIs(t, err, errors.ErrUnsupportedOp)
	assert.ErrorIs(t, plain.Handshake(), errors.ErrUnsupportedOp)
	_, ok := plain.ConnectionState()
	assert.False(t, ok)
}

func TestSocketDriverMode(t *testing.T) {
	server := mustScheduler(t)
	ln, err := ListenTCP(server, "tcp6", "[::1]:0")
	if err != nil {
		t.Skipf("IPv6 loopback is unavailable: %v", err)
	}
	addr := ln.LocalAddr().String()

	var serverErrs []error
	_, err = server.Go(func(s *Scheduler) error {
		conn, err := ln.Accept()
		_ = ln.Close()
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		if _, err = conn.Write([]byte("abcdef")); err != nil {
			return err
		}
		var b [1]byte
		if _, err = conn.Read(b[:]); err != nil {
			return err
		}
		if b[0] != 'b' {
			return io.ErrUnexpectedEOF
		}
		_, err = conn.Read(b[:])
		serverErrs = append(serverErrs, err)
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- server.Run() }()

	// No task runs on the client scheduler, every call drives its loop.
	client := mustScheduler(t)
	conn, err := DialTCP(client, "tcp6", addr)
	require.NoError(t, err)
	assert.Equal(t, KindTCP6, conn.Kind())
	for cur := byte('a'); cur <= 'f'; cur++ {
		var b [1]byte
		_, err = conn.Read(b[:])
		require.NoError(t, err)
		assert.Equal(t, cur, b[0])
	}
	_, err = conn.Write([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, <-done)
	require.Len(t, serverErrs, 1)
	assert.ErrorIs(t, serverErrs[0], io.EOF)
}

func TestDatagramSocket(t *testing.T) {
	s := mustScheduler(t)
	srv, err := ListenUDP(s, "udp4", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, KindUDP4, srv.Kind())
	addr := srv.LocalAddr().String()

	var (
		from      net.Addr
		clientLoc net.Addr
		replies   []string
	)
	_, err = s.Go(func(*Scheduler) error {
		defer srv.Close() //nolint:errcheck
		_, err := srv.Accept()
		assert.ErrorIs(t, err, errors.ErrUnsupportedOp)

		buf := make([]byte, 64)
		for i := 0; i < 2; i++ {
			var n int
			if n, from, err = srv.RecvFrom(buf); err != nil {
				return err
			}
			if _, err = srv.SendTo(append([]byte("re:"), buf[:n]...), from); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialUDP(s, "udp4", addr)
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		clientLoc = conn.LocalAddr()

		buf := make([]byte, 64)
		if _, err = conn.Write([]byte("ping")); err != nil {
			return err
		}
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		replies = append(replies, string(buf[:n]))

		if _, err = conn.Writev([][]byte{[]byte("one "), []byte("datagram")}); err != nil {
			return err
		}
		n, _, err = conn.RecvFrom(buf)
		if err != nil {
			return err
		}
		replies = append(replies, string(buf[:n]))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.Equal(t, []string{"re:ping", "re:one datagram"}, replies)
	assert.Equal(t, clientLoc.String(), from.String())
}

func TestDatagramSendToMismatchedFamily(t *testing.T) {
	s := mustScheduler(t)
	sock, err := NewSocket(s, KindUDP4)
	require.NoError(t, err)
	defer sock.Close() //nolint:errcheck

	_, err = sock.SendTo([]byte("x"), &net.UDPAddr{IP: net.IPv6loopback, Port: 9})
	assert.ErrorIs(t, err, errors.ErrInvalidAddress)
	_, err = sock.SendTo([]byte("x"), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidAddress)
}

func TestTLSSocket(t *testing.T) {
	config, err := NewSelfSignedTLSConfig()
	require.NoError(t, err)

	s := mustScheduler(t)
	ln, err := ListenTLS(s, "tcp4", "127.0.0.1:0", config)
	require.NoError(t, err)
	assert.Equal(t, KindTLS4, ln.Kind())
	addr := ln.LocalAddr().String()

	var clientErrs []error
	_, err = s.Go(func(*Scheduler) error {
		defer ln.Close() //nolint:errcheck
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		buf := make([]byte, 4)
		if _, err = io.ReadFull(conn, buf); err != nil {
			return err
		}
		assert.Equal(t, "ping", string(buf))
		state, ok := conn.ConnectionState()
		assert.True(t, ok)
		assert.True(t, state.HandshakeComplete)
		_, err = conn.Write([]byte("pong"))
		return err
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		conn, err := DialTLS(s, "tcp4", addr, &tls.Config{RootCAs: config.RootCAs, MinVersion: tls.VersionTLS12})
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		state, ok := conn.ConnectionState()
		assert.True(t, ok)
		assert.True(t, state.HandshakeComplete)
		assert.NoError(t, conn.Handshake())

		if _, err = conn.Write([]byte("ping")); err != nil {
			return err
		}
		buf := make([]byte, 4)
		if _, err = io.ReadFull(conn, buf); err != nil {
			return err
		}
		assert.Equal(t, "pong", string(buf))
		_, err = conn.Read(buf)
		clientErrs = append(clientErrs, err)
		_, err = conn.Read(buf)
		clientErrs = append(clientErrs, err)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	require.Len(t, clientErrs, 2)
	assert.ErrorIs(t, clientErrs[0], io.EOF)
	assert.ErrorIs(t, clientErrs[1], errors.ErrPeerClosed)
}

func TestTLSSocketUntrustedServer(t *testing.T) {
	config, err := NewSelfSignedTLSConfig()
	require.NoError(t, err)

	s := mustScheduler(t)
	ln, err := ListenTLS(s, "tcp4", "127.0.0.1:0", config)
	require.NoError(t, err)
	addr := ln.LocalAddr().String()

	var dialErr error
	_, err = s.Go(func(*Scheduler) error {
		defer ln.Close() //nolint:errcheck
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close() //nolint:errcheck
		assert.Error(t, conn.Handshake())
		return nil
	})
	require.NoError(t, err)
	_, err = s.Go(func(s *Scheduler) error {
		_, dialErr = DialTLS(s, "tcp4", addr, nil)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	var uaErr x509.UnknownAuthorityError
	assert.ErrorAs(t, dialErr, &uaErr)
}

func TestKindAndStateStrings(t *testing.T) {
	assert.Equal(t, "tcp4", KindTCP4.String())
	assert.Equal(t, "udp6", KindUDP6.String())
	assert.Equal(t, "listening", SocketListening.String())
	assert.Equal(t, "unknown", SocketState(42).String())
}
