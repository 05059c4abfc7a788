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

// Package dns implements a stub resolver that runs inside coio tasks: queries travel
// over a datagram Socket, so a lookup suspends the calling Task instead of blocking
// the scheduler thread. Messages are encoded and decoded with github.com/miekg/dns.
package dns

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/coio-net/coio"
	errorx "github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/pool/byteslice"
)

const (
	// DefaultTimeout bounds each attempt of a query.
	DefaultTimeout = 2 * time.Second
	// DefaultAttempts is the number of times a query is sent before giving up.
	DefaultAttempts = 3
)

// ErrNoAnswer occurs when the server answered without any record of the requested type.
var ErrNoAnswer = errors.New("dns: no answer")

// RcodeError occurs when the server answers a query with a non-success response code.
type RcodeError struct {
	Name  string
	Rcode int
}

func (e *RcodeError) Error() string {
	return fmt.Sprintf("dns: lookup %s: %s", e.Name, dns.RcodeToString[e.Rcode])
}

// Option is a function that will set up a resolver option.
type Option func(r *Resolver)

// WithTimeout bounds each attempt of a query.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

// WithAttempts sets the number of times a query is sent before giving up.
func WithAttempts(attempts int) Option {
	return func(r *Resolver) {
		r.attempts = attempts
	}
}

// Resolver sends queries to one DNS server on behalf of the tasks of a Scheduler.
type Resolver struct {
	sched    *coio.Scheduler
	server   string
	timeout  time.Duration
	attempts int
}

// NewResolver creates a Resolver querying server, a "host:port" address, over UDP.
func NewResolver(sched *coio.Scheduler, server string, opts ...Option) *Resolver {
	r := &Resolver{sched: sched, server: server, timeout: DefaultTimeout, attempts: DefaultAttempts}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts <= 0 {
		r.attempts = 1
	}
	return r
}

// Exchange sends m and returns the matching response. Responses whose id does not
// match m are discarded, an attempt that times out is retried with the same message.
func (r *Resolver) Exchange(m *dns.Msg) (*dns.Msg, error) {
	query, err := m.Pack()
	if err != nil {
		return nil, err
	}
	sock, err := coio.DialUDP(r.sched, "udp", r.server, coio.WithTimeout(r.timeout))
	if err != nil {
		return nil, err
	}
	defer sock.Close() //nolint:errcheck

	buf := byteslice.Get(dns.MaxMsgSize)
	defer byteslice.Put(buf)

	for attempt := 0; attempt < r.attempts; attempt++ {
		if _, err = sock.Write(query); err != nil {
			return nil, err
		}
		var resp *dns.Msg
		if resp, err = r.receive(sock, buf, m.Id); err == nil {
			return resp, nil
		}
		if !errors.Is(err, errorx.ErrTimeout) {
			return nil, err
		}
	}
	return nil, err
}

func (r *Resolver) receive(sock *coio.Socket, buf []byte, id uint16) (*dns.Msg, error) {
	for {
		n, err := sock.Read(buf)
		if err != nil {
			return nil, err
		}
		resp := new(dns.Msg)
		if err = resp.Unpack(buf[:n]); err != nil || resp.Id != id {
			continue
		}
		return resp, nil
	}
}

// LookupA returns the IPv4 addresses of name.
func (r *Resolver) LookupA(name string) ([]net.IP, error) {
	return r.lookup(name, dns.TypeA)
}

// LookupAAAA returns the IPv6 addresses of name.
func (r *Resolver) LookupAAAA(name string) ([]net.IP, error) {
	return r.lookup(name, dns.TypeAAAA)
}

func (r *Resolver) lookup(name string, qtype uint16) ([]net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	resp, err := r.Exchange(m)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, &RcodeError{Name: name, Rcode: resp.Rcode}
	}
	var ips []net.IP
	for _, rr := range resp.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				ips = append(ips, rr.A)
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				ips = append(ips, rr.AAAA)
			}
		}
	}
	if len(ips) == 0 {
		return nil, ErrNoAnswer
	}
	return ips, nil
}
