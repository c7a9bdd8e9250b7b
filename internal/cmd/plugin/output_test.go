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

package plugin

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Machine-readable printer", func() {
	payload := struct {
		Service string `json:"service"`
		Weight  int    `json:"weight"`
	}{Service: "checkout", Weight: 30}

	It("prints indented JSON ending with a newline", func() {
		var buffer bytes.Buffer
		Expect(Print(payload, OutputFormatJSON, &buffer)).To(Succeed())
		Expect(buffer.String()).To(HavePrefix("{\n"))
		Expect(buffer.String()).To(HaveSuffix("}\n"))
		Expect(buffer.String()).To(ContainSubstring(`"service": "checkout"`))
	})

	It("prints YAML", func() {
		var buffer bytes.Buffer
		Expect(Print(payload, OutputFormatYAML, &buffer)).To(Succeed())
		Expect(buffer.String()).To(ContainSubstring("service: checkout"))
		Expect(buffer.String()).To(ContainSubstring("weight: 30"))
	})

	It("prints nothing for the text format", func() {
		var buffer bytes.Buffer
		Expect(Print(payload, OutputFormatText, &buffer)).To(Succeed())
		Expect(buffer.Len()).To(BeZero())
	})
})
