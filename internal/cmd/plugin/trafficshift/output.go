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

package trafficshift

import (
	"fmt"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"

	"github.com/meridian-ops/meridian/pkg/traffic"
)

func printResult(result traffic.Result) {
	switch result.Phase {
	case traffic.PhaseFailed:
		fmt.Println(aurora.Red("Traffic Shift Failed"))
	case traffic.PhaseCompleted:
		fmt.Println(aurora.Green("Traffic Shift Completed"))
	default:
		fmt.Println(aurora.Green("Traffic Shift Verified"))
	}

	summary := tabby.New()
	summary.AddLine("Service:", result.Split.Service)
	summary.AddLine("Namespace:", result.Split.Namespace)
	summary.AddLine("Mechanism:", string(result.Split.Mechanism))
	summary.AddLine("Shift:", fmt.Sprintf("%s -> %s",
		result.Split.FromVersion, result.Split.ToVersion))
	summary.AddLine("Requested weight:", fmt.Sprintf("%d%%", result.Split.TargetWeightPct))
	summary.AddLine("Observed weight:", fmt.Sprintf("%.1f%%", result.ObservedWeight))

	if result.Phase == traffic.PhaseFailed {
		summary.AddLine("Deviation:", aurora.Red(fmt.Sprintf("%.1f points", result.Deviation)))
	} else {
		summary.AddLine("Deviation:", fmt.Sprintf("%.1f points", result.Deviation))
	}
	if result.Message != "" {
		summary.AddLine("Note:", result.Message)
	}
	summary.Print()
}
