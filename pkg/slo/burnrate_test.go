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

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Burn rate analysis", func() {
	thresholds := DefaultThresholds()

	It("classifies a half-budget burn as normal", func() {
		// availability 99.95% against a 99.9% objective
		analysis := Analyze(0.9995, thresholds)

		Expect(analysis.BurnRate).To(BeNumerically("~", 0.5, 1e-9))
		Expect(analysis.Classification).To(Equal(BurnNormal))
	})

	It("classifies a severe short outage as critical and derives exhaustion", func() {
		// availability 98.5% over a short window
		analysis := Analyze(0.985, thresholds)

		Expect(analysis.BurnRate).To(BeNumerically("~", 15.0, 1e-9))
		Expect(analysis.Classification).To(Equal(BurnCritical))
		Expect(analysis.MinutesToExhaustion).To(BeNumerically("~", 2880, 1e-6))
	})

	It("classifies a sustained moderate burn as warning", func() {
		analysis := Analyze(0.992, thresholds)

		Expect(analysis.BurnRate).To(BeNumerically("~", 8.0, 1e-9))
		Expect(analysis.Classification).To(Equal(BurnWarning))
	})

	It("reports infinite time to exhaustion when nothing burns", func() {
		analysis := Analyze(1.0, thresholds)

		Expect(analysis.BurnRate).To(BeZero())
		Expect(math.IsInf(analysis.MinutesToExhaustion, 1)).To(BeTrue())
		Expect(analysis.Classification).To(Equal(BurnNormal))
	})

	It("never decreases severity as the error ratio grows", func() {
		severity := func(c Classification) int {
			switch c {
			case BurnWarning:
				return 1
			case BurnCritical:
				return 2
			default:
				return 0
			}
		}

		previous := -1
		for ratio := 1.0; ratio >= 0.9; ratio -= 0.001 {
			current := severity(Analyze(ratio, thresholds).Classification)
			Expect(current).To(BeNumerically(">=", previous))
			previous = current
		}
	})

	It("folds a critical burn into a failing verdict", func() {
		verdict := BurnRateVerdict(Analyze(0.985, thresholds), thresholds)
		Expect(verdict.Metric).To(Equal(MetricBurnRate))
		Expect(verdict.Status).To(Equal(StatusFail))

		verdict = BurnRateVerdict(Analyze(0.9995, thresholds), thresholds)
		Expect(verdict.Status).To(Equal(StatusPass))
	})
})
