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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GlobalLB implements PoolControl against the HTTP control API of the
// global load balancer
type GlobalLB struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGlobalLB creates a pool control client for the API at baseURL
func NewGlobalLB(baseURL, token string, timeout time.Duration) *GlobalLB {
	return &GlobalLB{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type poolsPayload struct {
	Pools       []string `json:"pools"`
	Description string   `json:"description,omitempty"`
}

// GetPools reads the ordered pool membership of a load balancer
func (g *GlobalLB) GetPools(ctx context.Context, loadBalancerID string) ([]string, error) {
	var payload poolsPayload
	if err := g.do(ctx, http.MethodGet, loadBalancerID, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Pools, nil
}

// SetPools replaces the pool membership of a load balancer
func (g *GlobalLB) SetPools(ctx context.Context, loadBalancerID string, pools []string, description string) error {
	return g.do(ctx, http.MethodPut, loadBalancerID,
		&poolsPayload{Pools: pools, Description: description}, nil)
}

func (g *GlobalLB) do(ctx context.Context, method, loadBalancerID string, body, result any) error {
	url := fmt.Sprintf("%s/v1/load-balancers/%s/pools", g.baseURL, loadBalancerID)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("while encoding pool payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("while building load balancer request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		request.Header.Set("Authorization", "Bearer "+g.token)
	}

	response, err := g.client.Do(request)
	if err != nil {
		return fmt.Errorf("load balancer API call failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		content, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("load balancer API returned %d: %s",
			response.StatusCode, strings.TrimSpace(string(content)))
	}

	if result != nil {
		if err := json.NewDecoder(response.Body).Decode(result); err != nil {
			return fmt.Errorf("while decoding load balancer response: %w", err)
		}
	}

	return nil
}
