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

package runlock_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-ops/meridian/pkg/runlock"
)

var _ = Describe("Run lock registry", func() {
	It("rejects a second run on the same key", func() {
		registry := runlock.New()

		release, err := registry.TryAcquire(runlock.Key("eu-west", "us-east"))
		Expect(err).ToNot(HaveOccurred())

		_, err = registry.TryAcquire(runlock.Key("eu-west", "us-east"))
		Expect(errors.Is(err, runlock.ErrRunInProgress)).To(BeTrue())

		release()
		_, err = registry.TryAcquire(runlock.Key("eu-west", "us-east"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("lets disjoint keys proceed in parallel", func() {
		registry := runlock.New()

		_, err := registry.TryAcquire(runlock.Key("checkout", "shop"))
		Expect(err).ToNot(HaveOccurred())

		_, err = registry.TryAcquire(runlock.Key("search", "shop"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("shares the default registry across acquirers", func() {
		release, err := runlock.Default().TryAcquire(runlock.Key("us-east", "eu-west"))
		Expect(err).ToNot(HaveOccurred())
		defer release()

		Expect(runlock.Default()).To(BeIdenticalTo(runlock.Default()))

		_, err = runlock.Default().TryAcquire(runlock.Key("us-east", "eu-west"))
		Expect(errors.Is(err, runlock.ErrRunInProgress)).To(BeTrue())
	})

	It("tolerates a double release", func() {
		registry := runlock.New()

		release, err := registry.TryAcquire("a")
		Expect(err).ToNot(HaveOccurred())
		release()
		release()

		_, err = registry.TryAcquire("a")
		Expect(err).ToNot(HaveOccurred())
	})
})
