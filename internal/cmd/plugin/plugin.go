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

// Package plugin contains the common behaviors of the meridian subcommands
package plugin

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/meridian-ops/meridian/internal/configuration"
	"github.com/meridian-ops/meridian/pkg/cluster"
	"github.com/meridian-ops/meridian/pkg/metrics"
	"github.com/meridian-ops/meridian/pkg/routing"
	"github.com/meridian-ops/meridian/pkg/versions"
)

var (
	// Namespace to operate in
	Namespace string

	// NamespaceExplicitlyPassed indicates if the namespace was passed manually
	NamespaceExplicitlyPassed bool

	// KubeContext to operate with
	KubeContext string

	// Config is the Kubernetes configuration used
	Config *rest.Config

	// Client is the controller-runtime client
	Client client.Client
)

// SetupKubernetesClient creates the k8s client used inside the meridian
// utility
func SetupKubernetesClient(configFlags *genericclioptions.ConfigFlags) error {
	var err error

	kubeconfig := configFlags.ToRawKubeConfigLoader()

	Config, err = kubeconfig.ClientConfig()
	if err != nil {
		return err
	}

	if err = createClient(Config); err != nil {
		return err
	}

	Namespace, NamespaceExplicitlyPassed, err = kubeconfig.Namespace()
	if err != nil {
		return err
	}

	KubeContext = *configFlags.Context

	return nil
}

func createClient(cfg *rest.Config) error {
	var err error

	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)

	cfg.UserAgent = fmt.Sprintf("meridian/v%s (%s)", versions.Version, versions.BuildCommit)

	Client, err = client.New(cfg, client.Options{Scheme: scheme})
	return err
}

// Routes returns the route control bound to the connected cluster
func Routes() *routing.KubeRouter {
	return routing.NewKubeRouter(Client)
}

// ClusterControl returns the workload control bound to the connected
// cluster
func ClusterControl() *cluster.Client {
	return cluster.NewClient(Client)
}

// MetricsGateway returns the metrics gateway configured for the process
func MetricsGateway() (metrics.Gateway, error) {
	cfg := configuration.Current()
	return metrics.NewPrometheusGateway(cfg.PrometheusURL, cfg.RequestTimeout.Unwrap())
}
