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

// Package status implements the "status" subcommand
package status

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
)

// NewCmd creates the "status" subcommand
func NewCmd() *cobra.Command {
	var loadBalancerID, output string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest failover runs and the routing pool membership",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := collect(cmd.Context(), loadBalancerID, limit)
			if err != nil {
				return err
			}

			switch output {
			case plugin.OutputFormatText:
				printStatus(status)
				return nil
			default:
				return plugin.Print(status, plugin.OutputFormat(output), os.Stdout)
			}
		},
	}

	cmd.Flags().StringVar(&loadBalancerID, "lb-id", "",
		"Include the pool membership of this global load balancer")
	cmd.Flags().IntVar(&limit, "limit", 5,
		"How many recent failover runs to show")
	cmd.Flags().StringVarP(&output, "output", "o", plugin.OutputFormatText,
		fmt.Sprintf("Output format. One of %s|%s|%s",
			plugin.OutputFormatText, plugin.OutputFormatJSON, plugin.OutputFormatYAML))

	return cmd
}
