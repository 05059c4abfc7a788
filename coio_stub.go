// Copyright (c) 2019 Andy Pan
// Copyright (c) 2018 Joshua J Baker
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

package coio

import "github.com/coio-net/coio/pkg/errors"

// Scheduler is only available on Linux.
type Scheduler struct{}

// NewScheduler always fails with errors.ErrUnsupportedPlatform on this platform.
func NewScheduler(...Option) (*Scheduler, error) {
	return nil, errors.ErrUnsupportedPlatform
}
