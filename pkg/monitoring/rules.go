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

// Package monitoring registers durable alerting rules so that recovery
// of a failed region stays observable independently of the failover run
// that created them
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/meridian-ops/meridian/pkg/log"
)

// prometheusRuleGVK identifies the rule objects consumed by the
// prometheus operator
var prometheusRuleGVK = schema.GroupVersionKind{
	Group:   "monitoring.coreos.com",
	Version: "v1",
	Kind:    "PrometheusRule",
}

// Registrar registers recovery alert rules
type Registrar interface {
	RegisterRecoveryAlert(ctx context.Context, failedRegion, reason string, startedAt time.Time) error
}

// RuleRegistrar implements Registrar by reconciling a PrometheusRule
// object keyed on the failed region
type RuleRegistrar struct {
	client    client.Client
	namespace string
}

// NewRuleRegistrar creates a registrar writing rules into the given
// namespace
func NewRuleRegistrar(c client.Client, namespace string) *RuleRegistrar {
	return &RuleRegistrar{client: c, namespace: namespace}
}

// RegisterRecoveryAlert creates or updates the alert watching for the
// failed region to come back
func (r *RuleRegistrar) RegisterRecoveryAlert(ctx context.Context,
	failedRegion, reason string, startedAt time.Time,
) error {
	rule := &unstructured.Unstructured{}
	rule.SetGroupVersionKind(prometheusRuleGVK)
	rule.SetName(ruleName(failedRegion))
	rule.SetNamespace(r.namespace)

	spec := map[string]interface{}{
		"groups": []interface{}{
			map[string]interface{}{
				"name": "meridian-failover",
				"rules": []interface{}{
					map[string]interface{}{
						"alert": "FailedRegionRecovered",
						"expr": fmt.Sprintf(
							`sum(up{region=%q}) > 0`, failedRegion),
						"for": "5m",
						"labels": map[string]interface{}{
							"severity": "info",
							"region":   failedRegion,
						},
						"annotations": map[string]interface{}{
							"summary": fmt.Sprintf(
								"Region %s is reachable again after failover", failedRegion),
							"reason":       reason,
							"failedAt":     startedAt.UTC().Format(time.RFC3339),
							"registeredBy": "meridian",
						},
					},
				},
			},
		},
	}
	if err := unstructured.SetNestedMap(rule.Object, spec, "spec"); err != nil {
		return fmt.Errorf("while building recovery rule for %s: %w", failedRegion, err)
	}

	err := r.client.Create(ctx, rule)
	if apierrs.IsAlreadyExists(err) {
		existing := &unstructured.Unstructured{}
		existing.SetGroupVersionKind(prometheusRuleGVK)
		if err := r.client.Get(ctx, client.ObjectKeyFromObject(rule), existing); err != nil {
			return fmt.Errorf("while reading recovery rule for %s: %w", failedRegion, err)
		}
		existing.Object["spec"] = rule.Object["spec"]
		err = r.client.Update(ctx, existing)
	}
	if err != nil {
		return fmt.Errorf("while registering recovery rule for %s: %w", failedRegion, err)
	}

	log.FromContext(ctx).Info("Registered recovery alert rule",
		"region", failedRegion, "rule", rule.GetName())
	return nil
}

func ruleName(failedRegion string) string {
	return "meridian-recovery-" + strings.ToLower(failedRegion)
}
