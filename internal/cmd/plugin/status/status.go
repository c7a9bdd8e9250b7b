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

package status

import (
	"context"
	"fmt"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"

	"github.com/meridian-ops/meridian/internal/configuration"
	"github.com/meridian-ops/meridian/pkg/audit"
	"github.com/meridian-ops/meridian/pkg/failover"
	"github.com/meridian-ops/meridian/pkg/routing"
)

// Status is the machine-readable payload of the status command
type Status struct {
	Runs  []failover.Record `json:"runs"`
	Pools []string          `json:"pools,omitempty"`
}

func collect(ctx context.Context, loadBalancerID string, limit int) (Status, error) {
	cfg := configuration.Current()

	sink, err := audit.NewStore(cfg.AuditDBPath)
	if err != nil {
		return Status{}, err
	}
	defer func() {
		_ = sink.Close()
	}()

	runs, err := sink.Latest(ctx, limit)
	if err != nil {
		return Status{}, err
	}
	status := Status{Runs: runs}

	if loadBalancerID != "" {
		lb := routing.NewGlobalLB(cfg.LoadBalancerAPI, cfg.LoadBalancerToken, cfg.RequestTimeout.Unwrap())
		status.Pools, err = lb.GetPools(ctx, loadBalancerID)
		if err != nil {
			return Status{}, err
		}
	}

	return status, nil
}

func printStatus(status Status) {
	fmt.Println(aurora.Green("Recent Failover Runs"))
	if len(status.Runs) == 0 {
		fmt.Println(aurora.Yellow("No failover has been recorded"))
	} else {
		runs := tabby.New()
		runs.AddHeader("STARTED", "REGIONS", "STATUS", "REASON")
		for _, run := range status.Runs {
			runs.AddLine(
				run.StartedAt.Format(time.RFC3339),
				fmt.Sprintf("%s -> %s", run.FailedRegion, run.TargetRegion),
				colorRecordStatus(run.Status),
				run.Reason,
			)
		}
		runs.Print()
	}

	if status.Pools != nil {
		fmt.Println()
		fmt.Println(aurora.Green("Routing Pool Membership"))
		for _, pool := range status.Pools {
			fmt.Println(" ", pool)
		}
	}
}

func colorRecordStatus(status failover.RecordStatus) string {
	if status == failover.StatusCompleted {
		return aurora.Green(string(status)).String()
	}
	return aurora.Red(string(status)).String()
}
