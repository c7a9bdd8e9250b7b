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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Failover pool computation", func() {
	It("removes the failed region and keeps the target without duplicating it", func() {
		pools := FailoverPools([]string{"us-east", "eu-west", "ap-south"}, "us-east", "eu-west")
		Expect(pools).To(Equal([]string{"eu-west", "ap-south"}))
	})

	It("adds a target region that was not serving", func() {
		pools := FailoverPools([]string{"us-east", "ap-south"}, "us-east", "eu-west")
		Expect(pools).To(Equal([]string{"ap-south", "eu-west"}))
	})

	It("never leaves the set missing both regions", func() {
		pools := FailoverPools([]string{"us-east"}, "us-east", "eu-west")
		Expect(pools).To(Equal([]string{"eu-west"}))
	})

	It("preserves the order of the surviving pools", func() {
		pools := FailoverPools([]string{"a", "b", "c", "d"}, "c", "b")
		Expect(pools).To(Equal([]string{"a", "b", "d"}))
	})
})

var _ = Describe("Global load balancer API client", func() {
	It("round-trips the pool membership", func() {
		var storedPools []string
		var storedDescription string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/load-balancers/glb-1/pools"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))

			switch r.Method {
			case http.MethodGet:
				_ = json.NewEncoder(w).Encode(map[string]any{"pools": storedPools})
			case http.MethodPut:
				var payload struct {
					Pools       []string `json:"pools"`
					Description string   `json:"description"`
				}
				Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
				storedPools = payload.Pools
				storedDescription = payload.Description
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		lb := NewGlobalLB(server.URL, "secret", time.Second)

		Expect(lb.SetPools(context.TODO(), "glb-1",
			[]string{"eu-west", "ap-south"}, "failover from us-east")).To(Succeed())
		Expect(storedDescription).To(Equal("failover from us-east"))

		pools, err := lb.GetPools(context.TODO(), "glb-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(pools).To(Equal([]string{"eu-west", "ap-south"}))
	})

	It("surfaces API errors with the response body", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("token expired"))
		}))
		defer server.Close()

		lb := NewGlobalLB(server.URL, "secret", time.Second)

		_, err := lb.GetPools(context.TODO(), "glb-1")
		Expect(err).To(MatchError(ContainSubstring("403")))
		Expect(err).To(MatchError(ContainSubstring("token expired")))
	})
})
