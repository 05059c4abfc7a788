// Copyright (c) 2019 Andy Pan
// Copyright (c) 2017 Joshua J Baker
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

//go:build !linux

package netpoll

import (
	"time"

	"github.com/coio-net/coio/pkg/errors"
	"github.com/coio-net/coio/pkg/queue"
)

// Poller is not available on this platform.
type Poller struct{}

// OpenPoller always fails on this platform.
func OpenPoller(int) (*Poller, error) { return nil, errors.ErrUnsupportedPlatform }

// Close is a no-op.
func (*Poller) Close() error { return errors.ErrUnsupportedPlatform }

// Register always fails on this platform.
func (*Poller) Register(int, Handle, Mode) error { return errors.ErrUnsupportedPlatform }

// Update always fails on this platform.
func (*Poller) Update(int, Handle, Mode) error { return errors.ErrUnsupportedPlatform }

// Deregister always fails on this platform.
func (*Poller) Deregister(int) error { return errors.ErrUnsupportedPlatform }

// Poll always fails on this platform.
func (*Poller) Poll(_ time.Duration, batch []Event) ([]Event, error) {
	return batch, errors.ErrUnsupportedPlatform
}

// Trigger always fails on this platform.
func (*Poller) Trigger(queue.Func, any) error { return errors.ErrUnsupportedPlatform }

// HasAsyncJobs always reports false on this platform.
func (*Poller) HasAsyncJobs() bool { return false }

// RunAsyncJobs is a no-op on this platform.
func (*Poller) RunAsyncJobs(func(error)) int { return 0 }
