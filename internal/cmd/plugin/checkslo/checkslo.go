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

package checkslo

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
	"gopkg.in/yaml.v3"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
	"github.com/meridian-ops/meridian/pkg/slo"
)

// Summary ties together the compliance report and the burn rate
// analysis of one evaluation run
type Summary struct {
	Report          slo.ComplianceReport `json:"report"`
	BurnRate        slo.Analysis         `json:"burnRate"`
	BurnRateVerdict slo.Verdict          `json:"burnRateVerdict"`
}

// FailedCount is the number of failing checks, including the burn rate
// verdict, and doubles as the command exit code
func (s Summary) FailedCount() int {
	failed := s.Report.FailedCount()
	if s.BurnRateVerdict.Status == slo.StatusFail {
		failed++
	}
	return failed
}

func check(
	ctx context.Context,
	target slo.Target,
	window time.Duration,
	thresholds slo.ThresholdSet,
) (Summary, error) {
	gateway, err := plugin.MetricsGateway()
	if err != nil {
		return Summary{}, err
	}

	evaluator := slo.NewEvaluator(gateway, plugin.ClusterControl())
	report := evaluator.Evaluate(ctx, target, window, thresholds)

	return summarize(report, thresholds), nil
}

// summarize derives the burn rate analysis from the availability verdict
// of the report: both read the same success ratio over the same window,
// so no extra query is needed.
func summarize(report slo.ComplianceReport, thresholds slo.ThresholdSet) Summary {
	analysis := slo.Analyze(availabilityRatio(report), thresholds)
	return Summary{
		Report:          report,
		BurnRate:        analysis,
		BurnRateVerdict: slo.BurnRateVerdict(analysis, thresholds),
	}
}

func availabilityRatio(report slo.ComplianceReport) float64 {
	for _, verdict := range report.Verdicts {
		if verdict.Metric == slo.MetricAvailability {
			return verdict.Observed / 100
		}
	}
	return 1
}

func loadThresholds(path string) (slo.ThresholdSet, error) {
	thresholds := slo.DefaultThresholds()
	if path != "" {
		content, err := os.ReadFile(path) //#nosec
		if err != nil {
			return thresholds, fmt.Errorf("while reading thresholds file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &thresholds); err != nil {
			return thresholds, fmt.Errorf("while parsing thresholds file %q: %w", path, err)
		}
	}
	return thresholds, thresholds.Validate()
}

func printSummary(target slo.Target, window time.Duration, summary Summary) {
	fmt.Println(aurora.Green("SLO Compliance Report"))

	header := tabby.New()
	header.AddLine("Service:", target.Service)
	header.AddLine("Namespace:", target.Namespace)
	header.AddLine("Window:", window.String())
	header.Print()
	fmt.Println()

	checks := tabby.New()
	checks.AddHeader("METRIC", "OBSERVED", "THRESHOLD", "STATUS")
	for _, verdict := range summary.Report.Verdicts {
		checks.AddLine(
			string(verdict.Metric),
			formatObserved(verdict),
			fmt.Sprintf("%g", verdict.Threshold),
			colorStatus(verdict.Status),
		)
	}
	checks.AddLine(
		string(slo.MetricBurnRate),
		fmt.Sprintf("%.2f", summary.BurnRate.BurnRate),
		fmt.Sprintf("%g", summary.BurnRateVerdict.Threshold),
		colorStatus(summary.BurnRateVerdict.Status),
	)
	checks.Print()
	fmt.Println()

	printBurnRate(summary.BurnRate)
}

func printBurnRate(analysis slo.Analysis) {
	fmt.Println(aurora.Green("Error Budget"))

	budget := tabby.New()
	switch analysis.Classification {
	case slo.BurnCritical:
		budget.AddLine("Burn classification:", aurora.Red(analysis.Classification))
	case slo.BurnWarning:
		budget.AddLine("Burn classification:", aurora.Yellow(analysis.Classification))
	default:
		budget.AddLine("Burn classification:", aurora.Green(analysis.Classification))
	}

	if math.IsInf(analysis.MinutesToExhaustion, 1) {
		budget.AddLine("Budget exhaustion:", "never at the current rate")
	} else {
		budget.AddLine("Budget exhaustion:",
			fmt.Sprintf("%.0f minutes at the current rate", analysis.MinutesToExhaustion))
	}
	budget.Print()
}

func formatObserved(verdict slo.Verdict) string {
	observed := fmt.Sprintf("%.2f", verdict.Observed)
	if verdict.Absent {
		return observed + " (no data)"
	}
	return observed
}

func colorStatus(status slo.Status) string {
	if status == slo.StatusPass {
		return aurora.Green(string(status)).String()
	}
	return aurora.Red(string(status)).String()
}
