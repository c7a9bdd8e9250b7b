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

// Package routing controls where live traffic goes: the weighted
// version split of a service (mesh or ingress canary) and the regional
// pool membership of the global load balancer
package routing

import (
	"context"
	"errors"
)

// Mechanism selects the routing system carrying a weighted split
type Mechanism string

// The supported routing mechanisms. Mesh weighted routing is preferred
// when both are available.
const (
	MechanismMeshWeightedRoute Mechanism = "MeshWeightedRoute"
	MechanismIngressCanary     Mechanism = "IngressCanary"
)

// ErrUnknownMechanism is returned when neither routing system is
// present for a service
var ErrUnknownMechanism = errors.New("no supported routing mechanism found for service")

// RouteControl drives the weighted traffic split of one service
type RouteControl interface {
	// Detect probes which routing system is present for the service
	Detect(ctx context.Context, service, namespace string) (Mechanism, error)

	// SetWeightedRouteVia configures the version split through an
	// already-resolved mechanism, so a retried run does not re-probe.
	// Re-issuing the same split is a no-op.
	SetWeightedRouteVia(ctx context.Context, mechanism Mechanism,
		service, namespace string, splits map[string]int32) error

	// RemoveWeightedRoute drops the weighted rules once a rollout
	// completed
	RemoveWeightedRoute(ctx context.Context, service, namespace string) error

	// GetWeight reads the currently configured weight of a version;
	// known=false when no weighted rule exists for it
	GetWeight(ctx context.Context, mechanism Mechanism, service, namespace, version string) (weight int32, known bool, err error)

	// GetSelector reads the version the live routing selector points at;
	// an empty version with a nil error means no selector is set
	GetSelector(ctx context.Context, service, namespace string) (string, error)

	// SetSelector points the live routing selector at a version
	SetSelector(ctx context.Context, service, namespace, version string) error
}

// PoolControl manages the regional pool membership of a global load
// balancer
type PoolControl interface {
	GetPools(ctx context.Context, loadBalancerID string) ([]string, error)
	SetPools(ctx context.Context, loadBalancerID string, pools []string, description string) error
}

// FailoverPools computes the pool set of a failover: the failed region
// removed, the target region present exactly once, order of the
// surviving pools preserved. The input is the pool state read from the
// server immediately before mutation, never a cached view.
func FailoverPools(current []string, failedRegion, targetRegion string) []string {
	result := make([]string, 0, len(current)+1)
	targetPresent := false
	for _, pool := range current {
		if pool == failedRegion {
			continue
		}
		if pool == targetRegion {
			targetPresent = true
		}
		result = append(result, pool)
	}
	if !targetPresent {
		result = append(result, targetRegion)
	}
	return result
}
