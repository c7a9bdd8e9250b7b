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

package slo

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-ops/meridian/pkg/metrics"
)

// ReplicaReader is the slice of the cluster control plane the evaluator
// needs for the pod health check
type ReplicaReader interface {
	GetReplicas(ctx context.Context, deployment, namespace string) (ready, desired int32, err error)
}

// Evaluator computes compliance reports. It holds no mutable state and
// is safe for concurrent use.
type Evaluator struct {
	gateway  metrics.Gateway
	replicas ReplicaReader
}

// NewEvaluator creates an evaluator reading metrics through the given
// gateway and replica counts through the given reader
func NewEvaluator(gateway metrics.Gateway, replicas ReplicaReader) *Evaluator {
	return &Evaluator{gateway: gateway, replicas: replicas}
}

// Evaluate computes the compliance report of a target over a trailing
// window. The result depends only on the external state observed at
// call time; the evaluator has no side effects.
//
// Absent samples degrade to the best-case value (0 for error rate and
// latency, 100 for availability) so that a broken metrics pipeline does
// not page by itself; the Absent flag on the verdict keeps the
// distinction visible to callers wanting fail-closed semantics.
func (e *Evaluator) Evaluate(ctx context.Context, target Target, window time.Duration,
	thresholds ThresholdSet,
) ComplianceReport {
	var errorRate, latencyP95, latencyP99, availability metrics.Sample
	var ready, desired int32
	var replicaErr error

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		errorRate = e.gateway.Query(ctx, errorRateExpression(target), window)
		return nil
	})
	wg.Go(func() error {
		latencyP95 = e.gateway.Query(ctx, latencyQuantileExpression(target, 0.95), window)
		return nil
	})
	wg.Go(func() error {
		latencyP99 = e.gateway.Query(ctx, latencyQuantileExpression(target, 0.99), window)
		return nil
	})
	wg.Go(func() error {
		availability = e.gateway.Query(ctx, availabilityExpression(target), window)
		return nil
	})
	wg.Go(func() error {
		ready, desired, replicaErr = e.replicas.GetReplicas(ctx, target.DeploymentName(), target.Namespace)
		return nil
	})
	_ = wg.Wait()

	report := ComplianceReport{
		Target: target,
		Window: window.String(),
	}
	report.Append(upperBoundVerdict(MetricErrorRate, errorRate, thresholds.ErrorRatePct, 0))
	report.Append(upperBoundVerdict(MetricLatencyP95, latencyP95, thresholds.LatencyP95Ms, 0))
	report.Append(upperBoundVerdict(MetricLatencyP99, latencyP99, thresholds.LatencyP99Ms, 0))
	report.Append(lowerBoundVerdict(MetricAvailability, availability, thresholds.AvailabilityPct, 100))
	report.Append(replicaVerdict(ready, desired, replicaErr))

	return report
}

// upperBoundVerdict evaluates a "must not exceed" metric; an exact
// match with the threshold passes
func upperBoundVerdict(metric Metric, sample metrics.Sample, threshold, absentDefault float64) Verdict {
	observed := sample.Value
	if !sample.Present {
		observed = absentDefault
	}
	verdict := Verdict{
		Metric:    metric,
		Observed:  observed,
		Threshold: threshold,
		Status:    StatusPass,
		Absent:    !sample.Present,
	}
	if observed > threshold {
		verdict.Status = StatusFail
	}
	return verdict
}

// lowerBoundVerdict evaluates a "must not fall below" metric; an exact
// match with the threshold passes
func lowerBoundVerdict(metric Metric, sample metrics.Sample, threshold, absentDefault float64) Verdict {
	observed := sample.Value
	if !sample.Present {
		observed = absentDefault
	}
	verdict := Verdict{
		Metric:    metric,
		Observed:  observed,
		Threshold: threshold,
		Status:    StatusPass,
		Absent:    !sample.Present,
	}
	if observed < threshold {
		verdict.Status = StatusFail
	}
	return verdict
}

// replicaVerdict checks that every desired replica is ready. Any
// shortfall fails regardless of the other metrics. A control plane read
// failure degrades to the best case, consistent with the absent-sample
// policy, and is flagged as absent.
func replicaVerdict(ready, desired int32, err error) Verdict {
	if err != nil {
		return Verdict{
			Metric:    MetricPodHealth,
			Observed:  float64(desired),
			Threshold: float64(desired),
			Status:    StatusPass,
			Absent:    true,
		}
	}

	verdict := Verdict{
		Metric:    MetricPodHealth,
		Observed:  float64(ready),
		Threshold: float64(desired),
		Status:    StatusPass,
	}
	if ready < desired {
		verdict.Status = StatusFail
	}
	return verdict
}
