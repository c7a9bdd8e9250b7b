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

package slo

import "fmt"

// The expressions below carry a {{window}} placeholder that the metrics
// gateway substitutes with the evaluation window.

func errorRateExpression(target Target) string {
	return fmt.Sprintf(
		`100 * sum(rate(http_requests_total{service=%q,namespace=%q,code=~"5.."}[{{window}}]))`+
			` / sum(rate(http_requests_total{service=%q,namespace=%q}[{{window}}]))`,
		target.Service, target.Namespace, target.Service, target.Namespace)
}

func latencyQuantileExpression(target Target, quantile float64) string {
	return fmt.Sprintf(
		`1000 * histogram_quantile(%v, sum(rate(`+
			`http_request_duration_seconds_bucket{service=%q,namespace=%q}[{{window}}])) by (le))`,
		quantile, target.Service, target.Namespace)
}

func availabilityExpression(target Target) string {
	return fmt.Sprintf(
		`100 * sum(rate(http_requests_total{service=%q,namespace=%q,code!~"5.."}[{{window}}]))`+
			` / sum(rate(http_requests_total{service=%q,namespace=%q}[{{window}}]))`,
		target.Service, target.Namespace, target.Service, target.Namespace)
}
