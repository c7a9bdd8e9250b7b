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

// Package trafficshift implements the "traffic-shift" subcommand
package trafficshift

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
	"github.com/meridian-ops/meridian/internal/configuration"
	"github.com/meridian-ops/meridian/pkg/routing"
	"github.com/meridian-ops/meridian/pkg/runlock"
	"github.com/meridian-ops/meridian/pkg/traffic"
)

// NewCmd creates the "traffic-shift" subcommand
func NewCmd() *cobra.Command {
	var toVersion, fromVersion, mechanism, output string
	var weight int32
	var rollback bool

	cmd := &cobra.Command{
		Use:   "traffic-shift [service]",
		Short: "Shift a weighted share of traffic to a new version of a service",
		Long: "Configure the routing layer to send the requested percentage of " +
			"traffic to a version, wait for the split to settle and verify the " +
			"observed share against it. With --rollback, send all traffic back " +
			"to the given version instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			split := traffic.Split{
				Service:         args[0],
				Namespace:       plugin.Namespace,
				FromVersion:     fromVersion,
				ToVersion:       toVersion,
				TargetWeightPct: weight,
				Mechanism:       routing.Mechanism(mechanism),
			}

			controller, err := newController()
			if err != nil {
				return err
			}

			if rollback {
				if err := controller.Rollback(cmd.Context(), split); err != nil {
					return err
				}
				fmt.Printf("traffic for %s rolled back to version %s\n",
					split.Service, split.FromVersion)
				return nil
			}

			result, err := controller.Shift(cmd.Context(), split)
			if err != nil {
				return err
			}

			switch output {
			case plugin.OutputFormatText:
				printResult(result)
			default:
				if err := plugin.Print(result, plugin.OutputFormat(output), os.Stdout); err != nil {
					return err
				}
			}

			if result.Phase == traffic.PhaseFailed {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toVersion, "to-version", "",
		"The version receiving the shifted traffic")
	cmd.Flags().StringVar(&fromVersion, "from-version", "",
		"The version traffic is shifted away from, defaulting to the live one")
	cmd.Flags().Int32Var(&weight, "weight", 0,
		"The percentage of traffic the new version should receive")
	cmd.Flags().StringVar(&mechanism, "mechanism", "",
		"The routing mechanism to use, auto-detected when empty")
	cmd.Flags().BoolVar(&rollback, "rollback", false,
		"Send all traffic back to --from-version")
	cmd.Flags().StringVarP(&output, "output", "o", plugin.OutputFormatText,
		fmt.Sprintf("Output format. One of %s|%s|%s",
			plugin.OutputFormatText, plugin.OutputFormatJSON, plugin.OutputFormatYAML))
	_ = cmd.MarkFlagRequired("to-version")

	return cmd
}

func newController() (*traffic.Controller, error) {
	cfg := configuration.Current()

	gateway, err := plugin.MetricsGateway()
	if err != nil {
		return nil, err
	}

	opts := traffic.DefaultOptions(cfg.BaselineVersion)
	opts.SettleDelay = cfg.SettleDelay.Unwrap()
	opts.ToleranceMargin = cfg.ToleranceMargin
	opts.WriteRetries = cfg.WriteRetries

	return traffic.NewController(plugin.Routes(), gateway, runlock.Default(), opts), nil
}
