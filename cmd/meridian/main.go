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

// The meridian command drives progressive delivery and regional
// failover for the services it is pointed at
package main

import (
	"os"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/meridian-ops/meridian/internal/cmd/plugin"
	"github.com/meridian-ops/meridian/internal/cmd/plugin/checkslo"
	"github.com/meridian-ops/meridian/internal/cmd/plugin/failover"
	"github.com/meridian-ops/meridian/internal/cmd/plugin/status"
	"github.com/meridian-ops/meridian/internal/cmd/plugin/trafficshift"
	"github.com/meridian-ops/meridian/internal/cmd/versions"
	"github.com/meridian-ops/meridian/internal/configuration"
	"github.com/meridian-ops/meridian/pkg/log"
)

func main() {
	logFlags := &log.Flags{}
	configFlags := genericclioptions.NewConfigFlags(true)

	var configFile string

	rootCmd := &cobra.Command{
		Use:          "meridian",
		Short:        "Progressive delivery and regional failover controller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logFlags.ConfigureLogging()

			if err := configuration.ReadConfigFile(configFile); err != nil {
				return err
			}

			return plugin.SetupKubernetesClient(configFlags)
		},
	}

	logFlags.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"The configuration file, optional")
	configFlags.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(checkslo.NewCmd())
	rootCmd.AddCommand(trafficshift.NewCmd())
	rootCmd.AddCommand(failover.NewCmd())
	rootCmd.AddCommand(status.NewCmd())
	rootCmd.AddCommand(versions.NewCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
