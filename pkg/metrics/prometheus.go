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

package metrics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/meridian-ops/meridian/pkg/log"
)

// windowPlaceholder is replaced in expressions with the query window,
// e.g. `sum(rate(http_requests_total{code=~"5.."}[{{window}}]))`
const windowPlaceholder = "{{window}}"

// PrometheusGateway reads scalar values from a Prometheus server
type PrometheusGateway struct {
	api     promv1.API
	timeout time.Duration
}

// NewPrometheusGateway creates a gateway talking to the Prometheus
// server at the given base URL
func NewPrometheusGateway(url string, timeout time.Duration) (*PrometheusGateway, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("while creating Prometheus client for %q: %w", url, err)
	}

	return &PrometheusGateway{
		api:     promv1.NewAPI(client),
		timeout: timeout,
	}, nil
}

// Query implements the Gateway interface. Every failure mode of the
// read path (timeout, backend error, empty result, NaN) degrades to an
// absent sample.
func (g *PrometheusGateway) Query(ctx context.Context, expression string, window time.Duration) Sample {
	expr := strings.ReplaceAll(expression, windowPlaceholder, model.Duration(window).String())

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	value, warnings, err := g.api.Query(ctx, expr, time.Now())
	if err != nil {
		log.FromContext(ctx).V(1).Info("Metrics query failed, treating as no data",
			"expression", expr, "err", err.Error())
		return Absent(window)
	}
	if len(warnings) > 0 {
		log.FromContext(ctx).V(1).Info("Metrics query returned warnings",
			"expression", expr, "warnings", warnings)
	}

	scalar, ok := extractScalar(value)
	if !ok || math.IsNaN(scalar) {
		return Absent(window)
	}

	return Sample{
		Value:     scalar,
		Present:   true,
		Window:    window,
		QueriedAt: time.Now(),
	}
}

// extractScalar pulls a single float out of a Prometheus query result.
// Vector results use the first sample; empty results report no data.
func extractScalar(value model.Value) (float64, bool) {
	switch v := value.(type) {
	case *model.Scalar:
		return float64(v.Value), true
	case model.Vector:
		if len(v) == 0 {
			return 0, false
		}
		return float64(v[0].Value), true
	default:
		return 0, false
	}
}
