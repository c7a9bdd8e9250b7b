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

package routing

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/meridian-ops/meridian/pkg/log"
)

// virtualServiceGVK identifies the mesh weighted-routing object
var virtualServiceGVK = schema.GroupVersionKind{
	Group:   "networking.istio.io",
	Version: "v1beta1",
	Kind:    "VirtualService",
}

// versionLabel is the selector label carrying the active version
const versionLabel = "version"

// KubeRouter implements RouteControl against the service mesh or the
// ingress controller of a Kubernetes cluster, whichever is present
type KubeRouter struct {
	client client.Client
}

// NewKubeRouter creates a router using the given client
func NewKubeRouter(c client.Client) *KubeRouter {
	return &KubeRouter{client: c}
}

// Detect probes which routing system carries the service. Mesh weighted
// routing wins when both a VirtualService and an Ingress exist.
func (r *KubeRouter) Detect(ctx context.Context, service, namespace string) (Mechanism, error) {
	vs := newVirtualService(service, namespace)
	err := r.client.Get(ctx, client.ObjectKeyFromObject(vs), vs)
	switch {
	case err == nil:
		return MechanismMeshWeightedRoute, nil
	case meta.IsNoMatchError(err) || apierrs.IsNotFound(err):
		// mesh is not installed or not configured for this service,
		// fall through to the ingress probe
	default:
		return "", fmt.Errorf("while probing for mesh routing of %s/%s: %w", namespace, service, err)
	}

	if present, err := r.hasIngress(ctx, service, namespace); err != nil {
		return "", err
	} else if present {
		return MechanismIngressCanary, nil
	}

	return "", fmt.Errorf("%w: %s/%s", ErrUnknownMechanism, namespace, service)
}

// SetWeightedRoute configures the mesh virtual service with one
// weighted destination per version. The object is rewritten to the
// desired state, so re-issuing the same split is a no-op.
func (r *KubeRouter) setMeshWeightedRoute(ctx context.Context, service, namespace string,
	splits map[string]int32,
) error {
	vs := newVirtualService(service, namespace)
	if err := r.client.Get(ctx, client.ObjectKeyFromObject(vs), vs); err != nil {
		return fmt.Errorf("virtual service %s/%s not found: %w", namespace, service, err)
	}

	routes := make([]interface{}, 0, len(splits))
	for _, version := range sortedVersions(splits) {
		routes = append(routes, map[string]interface{}{
			"destination": map[string]interface{}{
				"host":   service,
				"subset": version,
			},
			"weight": int64(splits[version]),
		})
	}

	if err := setFirstHTTPRoute(vs, routes); err != nil {
		return fmt.Errorf("while building weighted route for %s/%s: %w", namespace, service, err)
	}

	if err := r.client.Update(ctx, vs); err != nil {
		return fmt.Errorf("while updating virtual service %s/%s: %w", namespace, service, err)
	}

	log.FromContext(ctx).Info("Configured mesh weighted route",
		"namespace", namespace, "service", service, "splits", splits)
	return nil
}

// removeMeshWeightedRoute collapses the route list to a single
// unweighted destination pointing at the live selector version
func (r *KubeRouter) removeMeshWeightedRoute(ctx context.Context, service, namespace string) error {
	version, err := r.GetSelector(ctx, service, namespace)
	if err != nil {
		return err
	}

	vs := newVirtualService(service, namespace)
	if err := r.client.Get(ctx, client.ObjectKeyFromObject(vs), vs); err != nil {
		return fmt.Errorf("virtual service %s/%s not found: %w", namespace, service, err)
	}

	route := []interface{}{
		map[string]interface{}{
			"destination": map[string]interface{}{
				"host":   service,
				"subset": version,
			},
		},
	}
	if err := setFirstHTTPRoute(vs, route); err != nil {
		return fmt.Errorf("while rewriting route for %s/%s: %w", namespace, service, err)
	}

	return r.client.Update(ctx, vs)
}

// SetWeightedRoute dispatches to the mechanism present on the cluster
func (r *KubeRouter) SetWeightedRoute(ctx context.Context, service, namespace string,
	splits map[string]int32,
) error {
	mechanism, err := r.Detect(ctx, service, namespace)
	if err != nil {
		return err
	}
	return r.SetWeightedRouteVia(ctx, mechanism, service, namespace, splits)
}

// SetWeightedRouteVia configures the split through an already-resolved
// mechanism, so a retried run does not re-detect
func (r *KubeRouter) SetWeightedRouteVia(ctx context.Context, mechanism Mechanism,
	service, namespace string, splits map[string]int32,
) error {
	switch mechanism {
	case MechanismMeshWeightedRoute:
		return r.setMeshWeightedRoute(ctx, service, namespace, splits)
	case MechanismIngressCanary:
		return r.setIngressCanary(ctx, service, namespace, splits)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMechanism, mechanism)
	}
}

// RemoveWeightedRoute drops the weighted rules after a completed rollout
func (r *KubeRouter) RemoveWeightedRoute(ctx context.Context, service, namespace string) error {
	mechanism, err := r.Detect(ctx, service, namespace)
	if err != nil {
		return err
	}
	switch mechanism {
	case MechanismMeshWeightedRoute:
		return r.removeMeshWeightedRoute(ctx, service, namespace)
	case MechanismIngressCanary:
		return r.removeIngressCanary(ctx, service, namespace)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMechanism, mechanism)
	}
}

// GetWeight reads the configured weight of a version from the routing
// system currently carrying the split
func (r *KubeRouter) GetWeight(ctx context.Context, mechanism Mechanism,
	service, namespace, version string,
) (int32, bool, error) {
	switch mechanism {
	case MechanismMeshWeightedRoute:
		return r.getMeshWeight(ctx, service, namespace, version)
	case MechanismIngressCanary:
		return r.getIngressCanaryWeight(ctx, service, namespace, version)
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownMechanism, mechanism)
	}
}

func (r *KubeRouter) getMeshWeight(ctx context.Context, service, namespace, version string,
) (int32, bool, error) {
	vs := newVirtualService(service, namespace)
	if err := r.client.Get(ctx, client.ObjectKeyFromObject(vs), vs); err != nil {
		if apierrs.IsNotFound(err) || meta.IsNoMatchError(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("while reading virtual service %s/%s: %w", namespace, service, err)
	}

	httpRules, _, err := unstructured.NestedSlice(vs.Object, "spec", "http")
	if err != nil || len(httpRules) == 0 {
		return 0, false, nil
	}
	firstRule, _ := httpRules[0].(map[string]interface{})
	routes, _ := firstRule["route"].([]interface{})
	for _, route := range routes {
		routeMap, _ := route.(map[string]interface{})
		destination, _ := routeMap["destination"].(map[string]interface{})
		if destination["subset"] != version {
			continue
		}
		if weight, ok := routeMap["weight"].(int64); ok {
			return int32(weight), true, nil
		}
	}
	return 0, false, nil
}

// GetSelector reads the version label of the live service selector
func (r *KubeRouter) GetSelector(ctx context.Context, service, namespace string) (string, error) {
	var svc corev1.Service
	if err := r.client.Get(ctx, client.ObjectKey{Name: service, Namespace: namespace}, &svc); err != nil {
		return "", fmt.Errorf("service %s/%s not found: %w", namespace, service, err)
	}
	return svc.Spec.Selector[versionLabel], nil
}

// SetSelector points the live service selector at a version
func (r *KubeRouter) SetSelector(ctx context.Context, service, namespace, version string) error {
	var svc corev1.Service
	if err := r.client.Get(ctx, client.ObjectKey{Name: service, Namespace: namespace}, &svc); err != nil {
		return fmt.Errorf("service %s/%s not found: %w", namespace, service, err)
	}

	if svc.Spec.Selector[versionLabel] == version {
		return nil
	}

	origSvc := svc.DeepCopy()
	if svc.Spec.Selector == nil {
		svc.Spec.Selector = map[string]string{}
	}
	svc.Spec.Selector[versionLabel] = version
	if err := r.client.Patch(ctx, &svc, client.MergeFrom(origSvc)); err != nil {
		return fmt.Errorf("while updating selector of %s/%s: %w", namespace, service, err)
	}

	log.FromContext(ctx).Info("Updated live routing selector",
		"namespace", namespace, "service", service, "version", version)
	return nil
}

// setFirstHTTPRoute rewrites the route list of the first HTTP rule of a
// virtual service, creating the rule when the spec is empty
func setFirstHTTPRoute(vs *unstructured.Unstructured, routes []interface{}) error {
	httpRules, _, err := unstructured.NestedSlice(vs.Object, "spec", "http")
	if err != nil {
		return err
	}

	var firstRule map[string]interface{}
	if len(httpRules) > 0 {
		firstRule, _ = httpRules[0].(map[string]interface{})
	}
	if firstRule == nil {
		firstRule = map[string]interface{}{}
	}
	firstRule["route"] = routes

	if len(httpRules) == 0 {
		httpRules = []interface{}{firstRule}
	} else {
		httpRules[0] = firstRule
	}

	return unstructured.SetNestedSlice(vs.Object, httpRules, "spec", "http")
}

func newVirtualService(service, namespace string) *unstructured.Unstructured {
	vs := &unstructured.Unstructured{}
	vs.SetGroupVersionKind(virtualServiceGVK)
	vs.SetName(service)
	vs.SetNamespace(namespace)
	return vs
}

func sortedVersions(splits map[string]int32) []string {
	versions := make([]string, 0, len(splits))
	for version := range splits {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}
