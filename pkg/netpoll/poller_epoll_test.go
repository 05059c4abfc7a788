//go:build linux

package netpoll

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func openPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := OpenPoller(InitPollEventsCap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPollerEdgeTriggered(t *testing.T) {
	p := openPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Register(a, Handle(7), ModeRead))
	_, err := unix.Write(b, []byte("abc"))
	require.NoError(t, err)

	events, err := p.Poll(time.Second, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 7, events[0].Handle)
	assert.True(t, events[0].Mode.Has(ModeRead))
	assert.False(t, events[0].Mode.Has(ModeWrite))

	t.Run("no-repeat-without-rearm", func(t *testing.T) {
		events, err := p.Poll(20*time.Millisecond, nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("update-rearms", func(t *testing.T) {
		require.NoError(t, p.Update(a, Handle(8), ModeRead|ModeWrite))
		events, err := p.Poll(time.Second, nil)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.EqualValues(t, 8, events[0].Handle)
		assert.True(t, events[0].Mode.Has(ModeRead|ModeWrite))
	})

	t.Run("deregister", func(t *testing.T) {
		require.NoError(t, p.Deregister(a))
		_, err := unix.Write(b, []byte("def"))
		require.NoError(t, err)
		events, err := p.Poll(20*time.Millisecond, nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestPollerLargeHandle(t *testing.T) {
	p := openPoller(t)
	a, _ := socketPair(t)

	h := Handle(3)<<32 | Handle(0xfffffffe)
	require.NoError(t, p.Register(a, h, ModeWrite))
	events, err := p.Poll(time.Second, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, h, events[0].Handle)
	assert.True(t, events[0].Mode.Has(ModeWrite))
}

func TestPollerPeerHangUp(t *testing.T) {
	p := openPoller(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0]) //nolint:errcheck

	require.NoError(t, p.Register(fds[0], Handle(1), ModeRead))
	require.NoError(t, unix.Close(fds[1]))

	events, err := p.Poll(time.Second, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Mode.Has(ModeRead), "hang-up must surface as readable, got %s", events[0].Mode)
	assert.True(t, events[0].Mode.Has(ModeReset), "hang-up must carry a reset, got %s", events[0].Mode)
}

// tcpPair returns a connected loopback TCP client and the server side accepted for it.
func tcpPair(t *testing.T) (client, server int) {
	t.Helper()
	ln, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(ln) //nolint:errcheck
	require.NoError(t, unix.Bind(ln, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(ln, 1))
	sa, err := unix.Getsockname(ln)
	require.NoError(t, err)

	client, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(client) })
	require.NoError(t, unix.Connect(client, sa))
	server, _, err = unix.Accept4(ln, unix.SOCK_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(client, true))
	return client, server
}

func TestPollerPeerReset(t *testing.T) {
	p := openPoller(t)
	client, server := tcpPair(t)

	require.NoError(t, p.Register(client, Handle(1), ModeRead))
	// A zero linger turns the close into a RST.
	require.NoError(t, unix.SetsockoptLinger(server, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0}))
	require.NoError(t, unix.Close(server))

	events, err := p.Poll(time.Second, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Mode.Has(ModeReset), "reset must be reported, got %s", events[0].Mode)

	_, err = unix.Read(client, make([]byte, 1))
	assert.ErrorIs(t, err, unix.ECONNRESET)
}

func TestPollerRegisterErrors(t *testing.T) {
	p := openPoller(t)
	a, _ := socketPair(t)

	require.NoError(t, p.Register(a, Handle(1), ModeRead))
	err := p.Register(a, Handle(2), ModeRead)
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.EEXIST))

	err = p.Update(-1, Handle(3), ModeRead)
	assert.True(t, errors.Is(err, unix.EBADF))
	err = p.Deregister(-1)
	assert.True(t, errors.Is(err, unix.EBADF))
}

func TestPollerTrigger(t *testing.T) {
	p := openPoller(t)

	var ran int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		for i := 0; i < 3; i++ {
			_ = p.Trigger(func(arg any) error {
				atomic.AddInt32(&ran, int32(arg.(int)))
				return nil
			}, 1)
		}
	}()

	start := time.Now()
	events, err := p.Poll(-1, nil)
	require.NoError(t, err)
	assert.Empty(t, events, "the wake descriptor must not be reported")
	assert.Less(t, time.Since(start), 5*time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&ran) < 3 && time.Now().Before(deadline) {
		p.RunAsyncJobs(nil)
		if atomic.LoadInt32(&ran) < 3 {
			_, err = p.Poll(100*time.Millisecond, nil)
			require.NoError(t, err)
		}
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&ran))
	assert.False(t, p.HasAsyncJobs())
}

func TestPollerTriggerErrors(t *testing.T) {
	p := openPoller(t)
	boom := errors.New("boom")
	require.NoError(t, p.Trigger(func(any) error { return boom }, nil))

	var got []error
	n := p.RunAsyncJobs(func(err error) { got = append(got, err) })
	assert.Equal(t, 1, n)
	assert.Equal(t, []error{boom}, got)
	assert.Zero(t, p.RunAsyncJobs(nil))
}

func TestDurationToMsec(t *testing.T) {
	assert.Equal(t, -1, durationToMsec(-1))
	assert.Equal(t, 0, durationToMsec(0))
	assert.Equal(t, 1, durationToMsec(time.Microsecond))
	assert.Equal(t, 2, durationToMsec(1500*time.Microsecond))
	assert.Equal(t, 1000, durationToMsec(time.Second))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "none", ModeNone.String())
	assert.Equal(t, "read|write", (ModeRead | ModeWrite).String())
	assert.Equal(t, "reset", ModeReset.String())
	assert.False(t, ModeRead.Has(ModeNone))
}
