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
	"strconv"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8client "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newService(name, namespace, version string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": name, versionLabel: version},
		},
	}
}

func newIngress(name, namespace, backend string) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: name + ".example.com",
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: backend,
									Port: networkingv1.ServiceBackendPort{Number: 80},
								},
							},
						}},
					},
				},
			}},
		},
	}
}

var _ = Describe("Mechanism detection", func() {
	const namespace = "shop"

	It("prefers mesh routing when a virtual service exists", func() {
		vs := newVirtualService("checkout", namespace)
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(vs, newIngress("checkout", namespace, "checkout")).
			Build()
		router := NewKubeRouter(fakeClient)

		mechanism, err := router.Detect(context.TODO(), "checkout", namespace)
		Expect(err).ToNot(HaveOccurred())
		Expect(mechanism).To(Equal(MechanismMeshWeightedRoute))
	})

	It("falls back to the ingress canary", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(newIngress("checkout", namespace, "checkout")).
			Build()
		router := NewKubeRouter(fakeClient)

		mechanism, err := router.Detect(context.TODO(), "checkout", namespace)
		Expect(err).ToNot(HaveOccurred())
		Expect(mechanism).To(Equal(MechanismIngressCanary))
	})

	It("reports an unknown mechanism when neither system is present", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).Build()
		router := NewKubeRouter(fakeClient)

		_, err := router.Detect(context.TODO(), "checkout", namespace)
		Expect(err).To(MatchError(ErrUnknownMechanism))
	})
})

var _ = Describe("Auto-detected weighted routing", func() {
	const namespace = "shop"

	It("routes through the mesh when a virtual service exists", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(
				newVirtualService("checkout", namespace),
				newService("checkout", namespace, "v1"),
			).
			Build()
		router := NewKubeRouter(fakeClient)

		err := router.SetWeightedRoute(context.TODO(),
			"checkout", namespace, map[string]int32{"v1": 80, "v2": 20})
		Expect(err).ToNot(HaveOccurred())

		vs := newVirtualService("checkout", namespace)
		Expect(fakeClient.Get(context.TODO(), k8client.ObjectKeyFromObject(vs), vs)).To(Succeed())
		httpRules, _, err := unstructured.NestedSlice(vs.Object, "spec", "http")
		Expect(err).ToNot(HaveOccurred())
		routes, _ := httpRules[0].(map[string]interface{})["route"].([]interface{})
		Expect(routes).To(HaveLen(2))
	})

	It("routes through the ingress canary when no mesh is present", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(
				newService("checkout", namespace, "v1"),
				newIngress("checkout", namespace, "checkout"),
			).
			Build()
		router := NewKubeRouter(fakeClient)

		err := router.SetWeightedRoute(context.TODO(),
			"checkout", namespace, map[string]int32{"v1": 80, "v2": 20})
		Expect(err).ToNot(HaveOccurred())

		var canary networkingv1.Ingress
		Expect(fakeClient.Get(context.TODO(),
			k8client.ObjectKey{Name: canaryIngressName("checkout"), Namespace: namespace},
			&canary)).To(Succeed())
		Expect(canary.Annotations[canaryWeightAnnotation]).To(Equal("20"))
	})

	It("surfaces the detection failure when neither system is present", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(newTestScheme()).Build()
		router := NewKubeRouter(fakeClient)

		err := router.SetWeightedRoute(context.TODO(),
			"checkout", namespace, map[string]int32{"v1": 80, "v2": 20})
		Expect(err).To(MatchError(ErrUnknownMechanism))
	})
})

var _ = Describe("Mesh weighted routing", func() {
	const namespace = "shop"
	var fakeClient k8client.Client
	var router *KubeRouter

	BeforeEach(func() {
		fakeClient = fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(
				newVirtualService("checkout", namespace),
				newService("checkout", namespace, "v1"),
			).
			Build()
		router = NewKubeRouter(fakeClient)
	})

	readRoutes := func() []interface{} {
		vs := newVirtualService("checkout", namespace)
		Expect(fakeClient.Get(context.TODO(), k8client.ObjectKeyFromObject(vs), vs)).To(Succeed())
		httpRules, _, err := unstructured.NestedSlice(vs.Object, "spec", "http")
		Expect(err).ToNot(HaveOccurred())
		Expect(httpRules).ToNot(BeEmpty())
		routes, _ := httpRules[0].(map[string]interface{})["route"].([]interface{})
		return routes
	}

	It("writes one weighted destination per version", func() {
		err := router.SetWeightedRouteVia(context.TODO(), MechanismMeshWeightedRoute,
			"checkout", namespace, map[string]int32{"v1": 70, "v2": 30})
		Expect(err).ToNot(HaveOccurred())

		routes := readRoutes()
		Expect(routes).To(HaveLen(2))

		first, _ := routes[0].(map[string]interface{})
		Expect(first["weight"]).To(Equal(int64(70)))
		destination, _ := first["destination"].(map[string]interface{})
		Expect(destination["subset"]).To(Equal("v1"))
	})

	It("is idempotent for the same split", func() {
		splits := map[string]int32{"v1": 70, "v2": 30}
		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismMeshWeightedRoute,
			"checkout", namespace, splits)).To(Succeed())
		firstPass := readRoutes()

		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismMeshWeightedRoute,
			"checkout", namespace, splits)).To(Succeed())
		Expect(readRoutes()).To(Equal(firstPass))
	})

	It("collapses the route to the live version when the split is removed", func() {
		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismMeshWeightedRoute,
			"checkout", namespace, map[string]int32{"v1": 0, "v2": 100})).To(Succeed())
		Expect(router.SetSelector(context.TODO(), "checkout", namespace, "v2")).To(Succeed())

		Expect(router.RemoveWeightedRoute(context.TODO(), "checkout", namespace)).To(Succeed())

		routes := readRoutes()
		Expect(routes).To(HaveLen(1))
		destination, _ := routes[0].(map[string]interface{})["destination"].(map[string]interface{})
		Expect(destination["subset"]).To(Equal("v2"))
	})
})

var _ = Describe("Live routing selector", func() {
	const namespace = "shop"
	var fakeClient k8client.Client
	var router *KubeRouter

	BeforeEach(func() {
		fakeClient = fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(newService("checkout", namespace, "v1")).
			Build()
		router = NewKubeRouter(fakeClient)
	})

	It("reads and updates the version label", func() {
		version, err := router.GetSelector(context.TODO(), "checkout", namespace)
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal("v1"))

		Expect(router.SetSelector(context.TODO(), "checkout", namespace, "v2")).To(Succeed())

		version, err = router.GetSelector(context.TODO(), "checkout", namespace)
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal("v2"))
	})
})

var _ = Describe("Ingress canary routing", func() {
	const namespace = "shop"
	var fakeClient k8client.Client
	var router *KubeRouter

	BeforeEach(func() {
		fakeClient = fake.NewClientBuilder().WithScheme(newTestScheme()).
			WithObjects(
				newService("checkout", namespace, "v1"),
				newIngress("checkout", namespace, "checkout"),
			).
			Build()
		router = NewKubeRouter(fakeClient)
	})

	readCanary := func() *networkingv1.Ingress {
		var canary networkingv1.Ingress
		err := fakeClient.Get(context.TODO(),
			k8client.ObjectKey{Name: canaryIngressName("checkout"), Namespace: namespace}, &canary)
		Expect(err).ToNot(HaveOccurred())
		return &canary
	}

	It("creates the canary ingress with the requested weight", func() {
		err := router.SetWeightedRouteVia(context.TODO(), MechanismIngressCanary,
			"checkout", namespace, map[string]int32{"v1": 70, "v2": 30})
		Expect(err).ToNot(HaveOccurred())

		canary := readCanary()
		Expect(canary.Annotations[canaryAnnotation]).To(Equal("true"))
		Expect(canary.Annotations[canaryWeightAnnotation]).To(Equal(strconv.Itoa(30)))
		Expect(canary.Spec.Rules[0].HTTP.Paths[0].Backend.Service.Name).To(Equal("checkout-v2"))
	})

	It("updates the weight on a following step", func() {
		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismIngressCanary,
			"checkout", namespace, map[string]int32{"v1": 70, "v2": 30})).To(Succeed())
		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismIngressCanary,
			"checkout", namespace, map[string]int32{"v1": 40, "v2": 60})).To(Succeed())

		Expect(readCanary().Annotations[canaryWeightAnnotation]).To(Equal("60"))
	})

	It("removes the canary ingress after completion, tolerating a repeat", func() {
		Expect(router.SetWeightedRouteVia(context.TODO(), MechanismIngressCanary,
			"checkout", namespace, map[string]int32{"v1": 0, "v2": 100})).To(Succeed())

		Expect(router.removeIngressCanary(context.TODO(), "checkout", namespace)).To(Succeed())
		Expect(router.removeIngressCanary(context.TODO(), "checkout", namespace)).To(Succeed())
	})
})
