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

// Package checkslo implements the "check-slo" subcommand
package checkslo

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
	"github.com/meridian-ops/meridian/pkg/slo"
)

// NewCmd creates the "check-slo" subcommand
func NewCmd() *cobra.Command {
	var deployment, thresholdsFile, output string
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "check-slo [service]",
		Short: "Evaluate the service level objectives of a service",
		Long: "Evaluate error rate, latency percentiles, availability and replica " +
			"health of a service against its thresholds, together with the error " +
			"budget burn rate. The exit code is the number of failing checks.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			thresholds, err := loadThresholds(thresholdsFile)
			if err != nil {
				return err
			}

			target := slo.Target{
				Service:    args[0],
				Namespace:  plugin.Namespace,
				Deployment: deployment,
			}

			summary, err := check(cmd.Context(), target, window, thresholds)
			if err != nil {
				return err
			}

			switch output {
			case plugin.OutputFormatText:
				printSummary(target, window, summary)
			default:
				if err := plugin.Print(summary, plugin.OutputFormat(output), os.Stdout); err != nil {
					return err
				}
			}

			if failed := summary.FailedCount(); failed > 0 {
				os.Exit(failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deployment, "deployment", "",
		"The deployment backing the service, defaulting to the service name")
	cmd.Flags().DurationVar(&window, "window", 5*time.Minute,
		"The trailing evaluation window")
	cmd.Flags().StringVar(&thresholdsFile, "thresholds", "",
		"A YAML file overriding the default SLO thresholds")
	cmd.Flags().StringVarP(&output, "output", "o", plugin.OutputFormatText,
		fmt.Sprintf("Output format. One of %s|%s|%s",
			plugin.OutputFormatText, plugin.OutputFormatJSON, plugin.OutputFormatYAML))

	return cmd
}
