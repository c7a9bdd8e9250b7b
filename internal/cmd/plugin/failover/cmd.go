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

// Package failover implements the "failover" subcommand
package failover

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
	"github.com/meridian-ops/meridian/internal/configuration"
	"github.com/meridian-ops/meridian/pkg/audit"
	pipeline "github.com/meridian-ops/meridian/pkg/failover"
	"github.com/meridian-ops/meridian/pkg/monitoring"
	"github.com/meridian-ops/meridian/pkg/notify"
	"github.com/meridian-ops/meridian/pkg/routing"
	"github.com/meridian-ops/meridian/pkg/runlock"
)

// NewCmd creates the "failover" subcommand
func NewCmd() *cobra.Command {
	var reason, service, loadBalancerID, targetContext, output string

	cmd := &cobra.Command{
		Use:   "failover [failed-region] [target-region]",
		Short: "Move traffic and capacity away from a failed region",
		Long: "Reroute the global load balancer away from the failed region, " +
			"scale up the target region, snapshot its configuration, register " +
			"a recovery alert and notify the on-call channel. Every step is " +
			"attempted even when an earlier one fails; the exit code is the " +
			"number of failed steps.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := pipeline.Request{
				FailedRegion:   args[0],
				TargetRegion:   args[1],
				Reason:         reason,
				Service:        service,
				Namespace:      plugin.Namespace,
				LoadBalancerID: loadBalancerID,
				TargetContext:  targetContext,
			}

			record, err := run(cmd, request)
			if err != nil {
				return err
			}

			switch output {
			case plugin.OutputFormatText:
				printRecord(record)
			default:
				if err := plugin.Print(record, plugin.OutputFormat(output), os.Stdout); err != nil {
					return err
				}
			}

			if failed := record.FailedSteps(); failed > 0 {
				os.Exit(failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "",
		"The reason for the failover, recorded in the audit trail")
	cmd.Flags().StringVar(&service, "service", "",
		"The service whose capacity is scaled up in the target region")
	cmd.Flags().StringVar(&loadBalancerID, "lb-id", "",
		"The global load balancer whose pool set is rerouted")
	cmd.Flags().StringVar(&targetContext, "target-context", "",
		"The kubeconfig context of the target region cluster")
	cmd.Flags().StringVarP(&output, "output", "o", plugin.OutputFormatText,
		fmt.Sprintf("Output format. One of %s|%s|%s",
			plugin.OutputFormatText, plugin.OutputFormatJSON, plugin.OutputFormatYAML))
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("lb-id")

	return cmd
}

func run(cmd *cobra.Command, request pipeline.Request) (pipeline.Record, error) {
	cfg := configuration.Current()

	sink, err := audit.NewStore(cfg.AuditDBPath)
	if err != nil {
		return pipeline.Record{}, err
	}
	defer func() {
		_ = sink.Close()
	}()

	opts := pipeline.DefaultOptions()
	opts.ScaleFactor = cfg.ScaleFactor
	opts.ScaleReadyTimeout = cfg.ScaleReadyTimeout.Unwrap()
	opts.WriteRetries = cfg.WriteRetries

	orchestrator := pipeline.NewOrchestrator(
		routing.NewGlobalLB(cfg.LoadBalancerAPI, cfg.LoadBalancerToken, cfg.RequestTimeout.Unwrap()),
		plugin.ClusterControl(),
		monitoring.NewRuleRegistrar(plugin.Client, plugin.Namespace),
		notify.NewWebhookClient(cfg.NotificationWebhook, cfg.RequestTimeout.Unwrap()),
		sink,
		runlock.Default(),
		opts,
	)

	return orchestrator.Run(cmd.Context(), request)
}
