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

// Package slo implements the service-level-objective evaluation model:
// compliance verdicts against a threshold set, and error-budget
// burn-rate classification
package slo

import (
	"fmt"
)

// Metric identifies the service-health signal a verdict refers to
type Metric string

// The metrics evaluated in a compliance report
const (
	MetricErrorRate    Metric = "ErrorRate"
	MetricLatencyP95   Metric = "LatencyP95"
	MetricLatencyP99   Metric = "LatencyP99"
	MetricAvailability Metric = "Availability"
	MetricBurnRate     Metric = "BurnRate"
	MetricPodHealth    Metric = "PodHealth"
)

// Status is the outcome of one verdict
type Status string

// Verdict outcomes
const (
	StatusPass Status = "Pass"
	StatusFail Status = "Fail"
)

// ThresholdSet is the immutable SLO configuration of a target
type ThresholdSet struct {
	// ErrorRatePct is the maximum tolerated error rate, in percent
	ErrorRatePct float64 `yaml:"errorRatePct"`

	// LatencyP95Ms is the maximum tolerated 95th percentile latency,
	// in milliseconds
	LatencyP95Ms float64 `yaml:"latencyP95Ms"`

	// LatencyP99Ms is the maximum tolerated 99th percentile latency,
	// in milliseconds
	LatencyP99Ms float64 `yaml:"latencyP99Ms"`

	// AvailabilityPct is the minimum tolerated availability, in percent
	AvailabilityPct float64 `yaml:"availabilityPct"`

	// ErrorBudget is the permitted failure fraction, e.g. 0.001 for a
	// 99.9% objective
	ErrorBudget float64 `yaml:"errorBudget"`

	// FastBurnMultiple classifies a burn rate as critical when exceeded
	FastBurnMultiple float64 `yaml:"fastBurnMultiple"`

	// SlowBurnMultiple classifies a burn rate as warning when exceeded
	SlowBurnMultiple float64 `yaml:"slowBurnMultiple"`
}

// DefaultThresholds returns the threshold set used when no configuration
// is supplied. The burn multiples are the customary fast/slow pair for a
// 30-day window.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		ErrorRatePct:     0.5,
		LatencyP95Ms:     500,
		LatencyP99Ms:     1000,
		AvailabilityPct:  99.9,
		ErrorBudget:      0.001,
		FastBurnMultiple: 14.4,
		SlowBurnMultiple: 6.0,
	}
}

// Validate checks the threshold set invariants before any evaluation
func (t ThresholdSet) Validate() error {
	for name, value := range map[string]float64{
		"errorRatePct":     t.ErrorRatePct,
		"latencyP95Ms":     t.LatencyP95Ms,
		"latencyP99Ms":     t.LatencyP99Ms,
		"availabilityPct":  t.AvailabilityPct,
		"errorBudget":      t.ErrorBudget,
		"fastBurnMultiple": t.FastBurnMultiple,
		"slowBurnMultiple": t.SlowBurnMultiple,
	} {
		if value < 0 {
			return fmt.Errorf("threshold %s is negative: %v", name, value)
		}
	}

	if t.ErrorBudget == 0 {
		return fmt.Errorf("errorBudget must be greater than zero")
	}

	if t.FastBurnMultiple <= t.SlowBurnMultiple {
		return fmt.Errorf("fastBurnMultiple (%v) must be greater than slowBurnMultiple (%v)",
			t.FastBurnMultiple, t.SlowBurnMultiple)
	}

	return nil
}

// Target identifies the workload a compliance report refers to
type Target struct {
	Service    string
	Namespace  string
	Deployment string
}

// DeploymentName returns the deployment backing the target, defaulting
// to the service name
func (t Target) DeploymentName() string {
	if t.Deployment != "" {
		return t.Deployment
	}
	return t.Service
}

// Verdict is the outcome of evaluating one metric against its threshold
type Verdict struct {
	Metric    Metric  `json:"metric"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Status    Status  `json:"status"`

	// Absent flags a verdict computed from a missing sample, where the
	// observed value is the configured best-case default rather than a
	// measurement
	Absent bool `json:"absent,omitempty"`
}

// ComplianceReport is the ordered outcome of one evaluation run
type ComplianceReport struct {
	Target        Target    `json:"target"`
	Window        string    `json:"window"`
	Verdicts      []Verdict `json:"verdicts"`
	OverallStatus Status    `json:"overallStatus"`
}

// FailedCount returns the number of failing verdicts, used as the
// process exit code of the check-slo command
func (r ComplianceReport) FailedCount() int {
	count := 0
	for _, verdict := range r.Verdicts {
		if verdict.Status == StatusFail {
			count++
		}
	}
	return count
}

// recomputeOverall derives the overall status from the verdict list
func (r *ComplianceReport) recomputeOverall() {
	r.OverallStatus = StatusPass
	for _, verdict := range r.Verdicts {
		if verdict.Status == StatusFail {
			r.OverallStatus = StatusFail
			return
		}
	}
}

// Append adds a verdict to the report keeping the overall status
// consistent
func (r *ComplianceReport) Append(verdict Verdict) {
	r.Verdicts = append(r.Verdicts, verdict)
	r.recomputeOverall()
}
