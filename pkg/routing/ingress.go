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
	"strconv"

	networkingv1 "k8s.io/api/networking/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/meridian-ops/meridian/pkg/log"
)

// nginx ingress canary annotations
const (
	canaryAnnotation       = "nginx.ingress.kubernetes.io/canary"
	canaryWeightAnnotation = "nginx.ingress.kubernetes.io/canary-weight"
)

func canaryIngressName(service string) string {
	return service + "-canary"
}

func (r *KubeRouter) hasIngress(ctx context.Context, service, namespace string) (bool, error) {
	var ingress networkingv1.Ingress
	err := r.client.Get(ctx, client.ObjectKey{Name: service, Namespace: namespace}, &ingress)
	switch {
	case err == nil:
		return true, nil
	case apierrs.IsNotFound(err) || meta.IsNoMatchError(err):
		return false, nil
	default:
		return false, fmt.Errorf("while probing for ingress of %s/%s: %w", namespace, service, err)
	}
}

// setIngressCanary reconciles the canary ingress of a service: same
// routing rules as the live ingress, backends pointed at the canary
// version, weight carried by the canary-weight annotation. The canary
// version is the split entry that is not the live selector version.
func (r *KubeRouter) setIngressCanary(ctx context.Context, service, namespace string,
	splits map[string]int32,
) error {
	liveVersion, err := r.GetSelector(ctx, service, namespace)
	if err != nil {
		return err
	}

	canaryVersion := ""
	for version := range splits {
		if version != liveVersion {
			canaryVersion = version
		}
	}
	if canaryVersion == "" {
		// the split only contains the live version, nothing to shift to
		return fmt.Errorf("no canary version in split %v for %s/%s", splits, namespace, service)
	}
	weight := splits[canaryVersion]

	var live networkingv1.Ingress
	if err := r.client.Get(ctx, client.ObjectKey{Name: service, Namespace: namespace}, &live); err != nil {
		return fmt.Errorf("ingress %s/%s not found: %w", namespace, service, err)
	}

	desired := networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      canaryIngressName(service),
			Namespace: namespace,
			Annotations: map[string]string{
				canaryAnnotation:       "true",
				canaryWeightAnnotation: strconv.Itoa(int(weight)),
			},
		},
		Spec: *live.Spec.DeepCopy(),
	}
	retargetBackends(&desired.Spec, service, fmt.Sprintf("%s-%s", service, canaryVersion))

	var existing networkingv1.Ingress
	err = r.client.Get(ctx, client.ObjectKeyFromObject(&desired), &existing)
	switch {
	case apierrs.IsNotFound(err):
		if err := r.client.Create(ctx, &desired); err != nil {
			return fmt.Errorf("while creating canary ingress for %s/%s: %w", namespace, service, err)
		}
	case err != nil:
		return fmt.Errorf("while reading canary ingress of %s/%s: %w", namespace, service, err)
	default:
		if existing.Annotations[canaryWeightAnnotation] == desired.Annotations[canaryWeightAnnotation] {
			return nil
		}
		existing.Annotations = desired.Annotations
		existing.Spec = desired.Spec
		if err := r.client.Update(ctx, &existing); err != nil {
			return fmt.Errorf("while updating canary ingress of %s/%s: %w", namespace, service, err)
		}
	}

	log.FromContext(ctx).Info("Configured ingress canary",
		"namespace", namespace, "service", service,
		"canaryVersion", canaryVersion, "weight", weight)
	return nil
}

// getIngressCanaryWeight reads the weight annotation of the canary
// ingress; only the canary version carries an explicit weight
func (r *KubeRouter) getIngressCanaryWeight(ctx context.Context, service, namespace, version string,
) (int32, bool, error) {
	var canary networkingv1.Ingress
	err := r.client.Get(ctx,
		client.ObjectKey{Name: canaryIngressName(service), Namespace: namespace}, &canary)
	if apierrs.IsNotFound(err) || meta.IsNoMatchError(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("while reading canary ingress of %s/%s: %w", namespace, service, err)
	}

	expectedBackend := fmt.Sprintf("%s-%s", service, version)
	if !backendMatches(&canary.Spec, expectedBackend) {
		return 0, false, nil
	}

	weight, err := strconv.Atoi(canary.Annotations[canaryWeightAnnotation])
	if err != nil {
		return 0, false, nil
	}
	return int32(weight), true, nil
}

func backendMatches(spec *networkingv1.IngressSpec, backend string) bool {
	if spec.DefaultBackend != nil && spec.DefaultBackend.Service != nil &&
		spec.DefaultBackend.Service.Name == backend {
		return true
	}
	for ruleIdx := range spec.Rules {
		httpRule := spec.Rules[ruleIdx].HTTP
		if httpRule == nil {
			continue
		}
		for pathIdx := range httpRule.Paths {
			service := httpRule.Paths[pathIdx].Backend.Service
			if service != nil && service.Name == backend {
				return true
			}
		}
	}
	return false
}

// removeIngressCanary deletes the canary ingress once a rollout
// completed; a missing canary is not an error
func (r *KubeRouter) removeIngressCanary(ctx context.Context, service, namespace string) error {
	canary := networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      canaryIngressName(service),
			Namespace: namespace,
		},
	}
	if err := r.client.Delete(ctx, &canary); err != nil && !apierrs.IsNotFound(err) {
		return fmt.Errorf("while deleting canary ingress of %s/%s: %w", namespace, service, err)
	}
	return nil
}

// retargetBackends rewrites every backend of an ingress spec pointing
// at fromService so that it points at toService
func retargetBackends(spec *networkingv1.IngressSpec, fromService, toService string) {
	if spec.DefaultBackend != nil && spec.DefaultBackend.Service != nil &&
		spec.DefaultBackend.Service.Name == fromService {
		spec.DefaultBackend.Service.Name = toService
	}
	for ruleIdx := range spec.Rules {
		httpRule := spec.Rules[ruleIdx].HTTP
		if httpRule == nil {
			continue
		}
		for pathIdx := range httpRule.Paths {
			backend := &httpRule.Paths[pathIdx].Backend
			if backend.Service != nil && backend.Service.Name == fromService {
				backend.Service.Name = toService
			}
		}
	}
}
