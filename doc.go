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

/*
Package coio implements a cooperative-task network I/O runtime.

A Scheduler owns one epoll-backed readiness multiplexer and runs its event loop on a
single goroutine. Application code runs inside Tasks started with Scheduler.Go. A
Task calls blocking-looking Socket operations (Accept, Connect, Read, Write); when an
operation would block, the Task is suspended and the loop resumes it once the
descriptor becomes ready, its deadline expires or the socket is closed underneath it.
Exactly one Task runs at a time within a Scheduler, so the data a Scheduler owns
needs no locks.

	sched, err := coio.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	defer sched.Close()

	_, _ = sched.Go(func(s *coio.Scheduler) error {
		ln, err := coio.ListenTCP(s, "tcp", "127.0.0.1:4242")
		if err != nil {
			return err
		}
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			_, _ = s.Go(func(*coio.Scheduler) error {
				defer conn.Close()
				_, err := conn.Write([]byte("hello world\n"))
				return err
			})
		}
	})

	if err = sched.Run(); err != nil {
		log.Fatal(err)
	}

Parallelism comes from running several independent Schedulers, one per OS thread,
with Spawn. Members share nothing: a listener meant to be load-shared is opened once
per Scheduler with WithReusePort, and the kernel routes each connection to exactly one
of them. The only thread-safe entry points of a Scheduler are Submit and Stop.

Socket operations called outside of any Task, before or between calls to Run, block
the calling goroutine by driving the Scheduler's loop until they complete.
*/
package coio
