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
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/coio-net/coio/pkg/errors"
)

// Group is a fixed set of Schedulers, each running its own loop on its own OS thread.
// Member 0 is the primary Scheduler, which the caller keeps driving; the others are
// spawned. Members share nothing, work reaches a member through its Submit method.
type Group struct {
	members []*Scheduler
	eg      errgroup.Group

	mu     sync.Mutex
	closed bool
}

// Spawn creates n Schedulers configured like primary and starts each of them on a
// dedicated goroutine locked to its OS thread. A spawned member keeps looping while
// idle until it is stopped, then it closes itself on its own thread.
func Spawn(primary *Scheduler, n int) (*Group, error) {
	if n < 0 {
		return nil, errors.ErrInvalidGroupSize
	}
	if primary.closing || primary.isClosed() {
		return nil, errors.ErrSchedulerClosed
	}

	g := &Group{members: make([]*Scheduler, 1, n+1)}
	g.members[0] = primary
	for i := 0; i < n; i++ {
		opts := *primary.opts
		opts.LockOSThread = false
		member, err := NewScheduler(WithOptions(opts))
		if err != nil {
			for _, m := range g.members[1:] {
				_ = m.Close()
			}
			return nil, err
		}
		member.hold = true
		g.members = append(g.members, member)
	}

	for i, member := range g.members[1:] {
		cpu, member := i+1, member
		g.eg.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if member.opts.CPUAffinity {
				if err := pinToCPU(cpu); err != nil {
					member.logger.Warnf("scheduler %d: failed to set CPU affinity: %v", member.id, err)
				}
			}
			err := member.Run()
			if err != nil {
				member.logger.Errorf("scheduler %d: loop exited with error: %v", member.id, err)
			}
			if cerr := member.Close(); err == nil {
				err = cerr
			}
			return err
		})
	}
	return g, nil
}

func pinToCPU(i int) error {
	var set unix.CPUSet
	set.Set(i % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}

// Len returns the number of Schedulers in the Group, the primary included.
func (g *Group) Len() int { return len(g.members) }

// Get returns the i-th Scheduler of the Group, 0 being the primary, or nil when i is
// out of range.
func (g *Group) Get(i int) *Scheduler {
	if i < 0 || i >= len(g.members) {
		return nil
	}
	return g.members[i]
}

// Go submits fn to every spawned member, each of them starts a Task running it.
// The primary is left alone, it belongs to the caller.
func (g *Group) Go(fn TaskFunc) error {
	for _, member := range g.members[1:] {
		if err := member.Submit(func(s *Scheduler) {
			if _, err := s.Go(fn); err != nil {
				s.logger.Errorf("scheduler %d: failed to start task: %v", s.id, err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop asks every spawned member to stop looping. It is safe to call Stop from any goroutine.
func (g *Group) Stop() {
	for _, member := range g.members[1:] {
		_ = member.Stop()
	}
}

// Wait blocks until every spawned member has exited its loop and closed itself, and
// returns the first error one of them ran into.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

// Close stops the spawned members and waits for them. The primary is not closed.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return errors.ErrGroupClosed
	}
	g.closed = true
	g.mu.Unlock()

	g.Stop()
	return g.Wait()
}
