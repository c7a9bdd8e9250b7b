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

import "math"

// MonthlyBudgetMinutes is the error budget expressed in minutes for a
// 30-day SLO window
const MonthlyBudgetMinutes = 43200

// Classification is the multi-window burn-rate severity.
//
// A single long window hides short severe outages and a single short
// window flaps on noise; the fast multiple catches severe short-lived
// outages, the slow multiple catches sustained low-grade degradation.
type Classification string

// Burn-rate severities, ordered
const (
	BurnNormal   Classification = "Normal"
	BurnWarning  Classification = "Warning"
	BurnCritical Classification = "Critical"
)

// Analysis is the outcome of one burn-rate computation
type Analysis struct {
	// BurnRate is the ratio between the observed error consumption and
	// the budgeted rate; above 1 the budget is being consumed faster
	// than sustainable
	BurnRate float64 `json:"burnRate"`

	Classification Classification `json:"classification"`

	// MinutesToExhaustion is the time left before the monthly budget is
	// fully consumed at the current rate; +Inf when nothing is burning
	MinutesToExhaustion float64 `json:"minutesToExhaustion"`
}

// Analyze computes the burn rate from an observed success ratio (0..1)
// and the configured error budget, and classifies it against the
// fast/slow burn multiples. Stateless and deterministic.
func Analyze(successRatio float64, thresholds ThresholdSet) Analysis {
	burnRate := (1 - successRatio) / thresholds.ErrorBudget

	analysis := Analysis{
		BurnRate:            burnRate,
		Classification:      BurnNormal,
		MinutesToExhaustion: math.Inf(1),
	}

	switch {
	case burnRate > thresholds.FastBurnMultiple:
		analysis.Classification = BurnCritical
	case burnRate > thresholds.SlowBurnMultiple:
		analysis.Classification = BurnWarning
	}

	if burnRate > 0 {
		analysis.MinutesToExhaustion = MonthlyBudgetMinutes / burnRate
	}

	return analysis
}

// BurnRateVerdict folds an analysis into a compliance verdict: the
// verdict fails when the budget is burning above the fast multiple
func BurnRateVerdict(analysis Analysis, thresholds ThresholdSet) Verdict {
	verdict := Verdict{
		Metric:    MetricBurnRate,
		Observed:  analysis.BurnRate,
		Threshold: thresholds.FastBurnMultiple,
		Status:    StatusPass,
	}
	if analysis.Classification == BurnCritical {
		verdict.Status = StatusFail
	}
	return verdict
}
