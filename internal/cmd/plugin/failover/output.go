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

package failover

import (
	"fmt"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"

	pipeline "github.com/meridian-ops/meridian/pkg/failover"
)

func printRecord(record pipeline.Record) {
	if record.Status == pipeline.StatusCompleted {
		fmt.Println(aurora.Green("Failover Completed"))
	} else {
		fmt.Println(aurora.Red("Failover Partially Failed"))
	}

	summary := tabby.New()
	summary.AddLine("Run:", record.ID)
	summary.AddLine("Regions:", fmt.Sprintf("%s -> %s",
		record.FailedRegion, record.TargetRegion))
	summary.AddLine("Reason:", record.Reason)
	summary.AddLine("Duration:", record.CompletedAt.Sub(record.StartedAt).Round(time.Second).String())
	summary.Print()
	fmt.Println()

	steps := tabby.New()
	steps.AddHeader("STEP", "STATUS", "DETAIL")
	for _, action := range record.Actions {
		if action.Status == pipeline.ActionSuccess {
			steps.AddLine(action.Step, aurora.Green(string(action.Status)), "")
			continue
		}
		steps.AddLine(action.Step, aurora.Red(string(action.Status)), action.Reason)
	}
	steps.Print()

	if len(record.Snapshot) > 0 {
		fmt.Println()
		fmt.Println(aurora.Green("Configuration Snapshot"))
		for _, item := range record.Snapshot {
			fmt.Println(" ", item)
		}
	}
}
