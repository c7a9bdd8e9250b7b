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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Webhook delivery", func() {
	It("posts the event as JSON and stamps the send time", func() {
		var received Event
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				w.WriteHeader(http.StatusAccepted)
			}))
		defer server.Close()

		client := NewWebhookClient(server.URL, time.Second)
		err := client.Send(context.TODO(), Event{
			Title:    "Regional failover: us-east moved to eu-west",
			Severity: SeverityCritical,
			Fields:   map[string]string{"reason": "regional outage"},
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(received.Title).To(ContainSubstring("us-east"))
		Expect(received.Severity).To(Equal(SeverityCritical))
		Expect(received.SentAt).ToNot(BeZero())
	})

	It("treats a non-2xx gateway answer as a failed delivery", func() {
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			}))
		defer server.Close()

		client := NewWebhookClient(server.URL, time.Second)
		err := client.Send(context.TODO(), Event{Title: "test", Severity: SeverityInfo})
		Expect(err).To(MatchError(ContainSubstring("429")))
	})

	It("reports an unreachable gateway", func() {
		client := NewWebhookClient("http://127.0.0.1:1", 100*time.Millisecond)
		err := client.Send(context.TODO(), Event{Title: "test", Severity: SeverityInfo})
		Expect(err).To(HaveOccurred())
	})
})
