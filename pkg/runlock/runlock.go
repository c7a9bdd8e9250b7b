/*
Copyright The Meridian Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package runlock enforces the single-flight discipline of the
// orchestration runs: at most one active run per target key, with
// disjoint keys proceeding fully in parallel
package runlock

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRunInProgress is returned when a run is already active on the
// requested key
var ErrRunInProgress = errors.New("a run is already in progress for this target")

// Registry tracks the active runs by key
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an empty registry
func New() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

var defaultRegistry = New()

// Default returns the process-wide registry. Commands acquire their
// run locks here so that concurrent invocations inside the same
// process contend on the same keys.
func Default() *Registry {
	return defaultRegistry
}

// TryAcquire reserves a key for a run, returning the release function
// the run must call when finished. A second acquisition of the same key
// fails fast with ErrRunInProgress.
func (r *Registry) TryAcquire(key string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.active[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
	}
	r.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.active, key)
		})
	}, nil
}

// Key builds the canonical lock key for a target tuple
func Key(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += "/"
		}
		key += part
	}
	return key
}
