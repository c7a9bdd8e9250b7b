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

// Package metrics contains the gateway used to read scalar time-series
// values from the metrics backend
package metrics

import (
	"context"
	"time"
)

// Sample is one scalar observation of a time-series expression.
// A sample can be absent, which is a distinct state from zero: the
// backend had no data for the window, or the read failed.
type Sample struct {
	Value     float64
	Present   bool
	Window    time.Duration
	QueriedAt time.Time
}

// Absent builds a sample carrying no data for a window
func Absent(window time.Duration) Sample {
	return Sample{Window: window, QueriedAt: time.Now()}
}

// Gateway evaluates a single scalar time-series expression over a
// trailing window. Implementations degrade read failures to an absent
// sample and never block longer than their configured timeout.
type Gateway interface {
	Query(ctx context.Context, expression string, window time.Duration) Sample
}
