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

package cluster

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// appLabel selects the configuration objects belonging to a service
const appLabel = "app.kubernetes.io/name"

// SnapshotConfig reads the configuration objects labeled for a service
// into a diagnostic inventory: names and key counts only, secret values
// are never copied
func (c *Client) SnapshotConfig(ctx context.Context, service, namespace string) ([]string, error) {
	selector := client.MatchingLabels{appLabel: service}

	var configMaps corev1.ConfigMapList
	if err := c.client.List(ctx, &configMaps, client.InNamespace(namespace), selector); err != nil {
		return nil, fmt.Errorf("while listing config maps of %s/%s: %w", namespace, service, err)
	}

	var secrets corev1.SecretList
	if err := c.client.List(ctx, &secrets, client.InNamespace(namespace), selector); err != nil {
		return nil, fmt.Errorf("while listing secrets of %s/%s: %w", namespace, service, err)
	}

	snapshot := make([]string, 0, len(configMaps.Items)+len(secrets.Items))
	for idx := range configMaps.Items {
		item := &configMaps.Items[idx]
		snapshot = append(snapshot,
			fmt.Sprintf("configmap/%s (%d keys)", item.Name, len(item.Data)+len(item.BinaryData)))
	}
	for idx := range secrets.Items {
		item := &secrets.Items[idx]
		snapshot = append(snapshot,
			fmt.Sprintf("secret/%s (%d keys)", item.Name, len(item.Data)))
	}

	sort.Strings(snapshot)
	return snapshot, nil
}
