// Copyright (c) 2019 Andy Pan
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

// Package goroutine provides the worker pool that runs blocking work offloaded
// by scheduler tasks, so the scheduler thread itself never blocks on it.
package goroutine

import (
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultAntsPoolSize sets up the capacity of worker pool, 256 * 1024.
	DefaultAntsPoolSize = 1 << 18

	// ExpiryDuration is the interval time to clean up those expired workers.
	ExpiryDuration = 10 * time.Second

	// Nonblocking decides what to do when submitting a new task to a full worker pool: waiting for a available worker
	// or returning ants.ErrPoolOverload directly.
	Nonblocking = true
)

func init() {
	// It releases the default pool from ants.
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// New instantiates a pool holding at most size workers, a non-positive size means DefaultAntsPoolSize.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultAntsPoolSize
	}
	return ants.NewPool(size, ants.WithOptions(ants.Options{ExpiryDuration: ExpiryDuration, Nonblocking: Nonblocking}))
}

// Default instantiates a non-blocking goroutine pool with the capacity of DefaultAntsPoolSize.
func Default() *Pool {
	p, _ := New(DefaultAntsPoolSize)
	return p
}
