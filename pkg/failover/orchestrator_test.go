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

package failover

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-ops/meridian/pkg/notify"
	"github.com/meridian-ops/meridian/pkg/runlock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakePools struct {
	pools    []string
	getErr   error
	setErr   error
	setCalls int
}

func (f *fakePools) GetPools(_ context.Context, _ string) ([]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]string{}, f.pools...), nil
}

func (f *fakePools) SetPools(_ context.Context, _ string, pools []string, _ string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls++
	f.pools = pools
	return nil
}

type fakeCapacity struct {
	desired     int32
	scaledTo    int32
	context     string
	waitErr     error
	snapshot    []string
	snapshotErr error
}

func (f *fakeCapacity) GetReplicas(_ context.Context, _, _ string) (int32, int32, error) {
	return f.desired, f.desired, nil
}

func (f *fakeCapacity) SetReplicas(_ context.Context, _, _ string, count int32) error {
	f.scaledTo = count
	return nil
}

func (f *fakeCapacity) WaitReady(_ context.Context, _, _ string, _ time.Duration) error {
	return f.waitErr
}

func (f *fakeCapacity) SwitchContext(cluster string) error {
	f.context = cluster
	return nil
}

func (f *fakeCapacity) SnapshotConfig(_ context.Context, _, _ string) ([]string, error) {
	return f.snapshot, f.snapshotErr
}

type fakeMonitor struct {
	registered bool
	err        error
}

func (f *fakeMonitor) RegisterRecoveryAlert(_ context.Context, _, _ string, _ time.Time) error {
	if f.err == nil {
		f.registered = true
	}
	return f.err
}

type fakeNotifier struct {
	events []notify.Event
	err    error
}

func (f *fakeNotifier) Send(_ context.Context, event notify.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeSink struct {
	records []Record
	err     error
}

func (f *fakeSink) Append(_ context.Context, record Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

var _ = Describe("Failover pipeline", func() {
	var pools *fakePools
	var capacity *fakeCapacity
	var monitor *fakeMonitor
	var notifier *fakeNotifier
	var sink *fakeSink
	var locks *runlock.Registry
	var orchestrator *Orchestrator

	request := Request{
		FailedRegion:   "us-east",
		TargetRegion:   "eu-west",
		Reason:         "regional outage",
		Service:        "checkout",
		Namespace:      "shop",
		LoadBalancerID: "glb-1",
	}

	newOrchestrator := func(opts Options) *Orchestrator {
		return NewOrchestrator(pools, capacity, monitor, notifier, sink, locks, opts)
	}

	BeforeEach(func() {
		pools = &fakePools{pools: []string{"us-east", "eu-west", "ap-south"}}
		capacity = &fakeCapacity{desired: 4, snapshot: []string{"configmap/checkout-config (3 keys)"}}
		monitor = &fakeMonitor{}
		notifier = &fakeNotifier{}
		sink = &fakeSink{}
		locks = runlock.New()

		opts := DefaultOptions()
		opts.WriteRetries = 1
		orchestrator = newOrchestrator(opts)
	})

	It("runs every step in order and completes", func() {
		record, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())

		Expect(record.Status).To(Equal(StatusCompleted))
		Expect(record.FailedSteps()).To(BeZero())
		Expect(record.Actions).To(HaveLen(5))
		Expect(record.Actions[0].Step).To(Equal(StepReroute))
		Expect(record.Actions[1].Step).To(Equal(StepScale))
		Expect(record.Actions[2].Step).To(Equal(StepSyncConfig))
		Expect(record.Actions[3].Step).To(Equal(StepMonitoring))
		Expect(record.Actions[4].Step).To(Equal(StepNotify))
		Expect(record.CompletedAt).ToNot(BeZero())

		Expect(pools.pools).To(Equal([]string{"eu-west", "ap-south"}))
		Expect(capacity.scaledTo).To(Equal(int32(6))) // 4 * 1.5
		Expect(record.Snapshot).To(ContainElement(ContainSubstring("checkout-config")))
		Expect(monitor.registered).To(BeTrue())
		Expect(notifier.events).To(HaveLen(1))
		Expect(notifier.events[0].Fields["failedRegion"]).To(Equal("us-east"))
		Expect(sink.records).To(HaveLen(1))
		Expect(sink.records[0].ID).To(Equal(record.ID))
	})

	It("never leaves the pool set missing both regions", func() {
		record, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Status).To(Equal(StatusCompleted))
		Expect(pools.pools).To(ContainElement("eu-west"))
		Expect(pools.pools).ToNot(ContainElement("us-east"))
	})

	It("does not mutate an already-correct pool set", func() {
		pools.pools = []string{"eu-west", "ap-south"}

		_, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())
		Expect(pools.setCalls).To(BeZero())
	})

	It("still attempts the remaining steps when rerouting fails", func() {
		pools.getErr = errors.New("load balancer API unreachable")

		record, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())

		Expect(record.Status).To(Equal(StatusPartiallyFailed))
		Expect(record.FailedSteps()).To(Equal(1))
		Expect(record.Actions[0].Status).To(Equal(ActionFailed))
		Expect(record.Actions[0].Reason).To(ContainSubstring("unreachable"))
		for _, action := range record.Actions[1:] {
			Expect(action.Status).To(Equal(ActionSuccess), action.Step)
		}
		Expect(notifier.events).To(HaveLen(1))
		Expect(sink.records).To(HaveLen(1))
	})

	It("records a degraded outcome when notification fails", func() {
		notifier.err = errors.New("gateway timeout")

		record, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())

		Expect(record.Status).To(Equal(StatusPartiallyFailed))
		Expect(record.Actions[4].Status).To(Equal(ActionFailed))
		Expect(sink.records).To(HaveLen(1))
	})

	It("reports a readiness timeout without treating it as fatal", func() {
		capacity.waitErr = context.DeadlineExceeded

		record, err := orchestrator.Run(context.TODO(), request)
		Expect(err).ToNot(HaveOccurred())

		Expect(record.Actions[1].Status).To(Equal(ActionFailed))
		Expect(record.Actions[1].Reason).To(ContainSubstring("not all ready"))
		// traffic already moved, the remaining hygiene still ran
		Expect(record.Actions[4].Status).To(Equal(ActionSuccess))
	})

	It("switches to the target region context when one is given", func() {
		scoped := request
		scoped.TargetContext = "eu-west-cluster"

		_, err := orchestrator.Run(context.TODO(), scoped)
		Expect(err).ToNot(HaveOccurred())
		Expect(capacity.context).To(Equal("eu-west-cluster"))
	})

	It("rejects an invalid request before touching anything", func() {
		bad := request
		bad.TargetRegion = bad.FailedRegion

		_, err := orchestrator.Run(context.TODO(), bad)
		Expect(errors.Is(err, ErrInvalidRequest)).To(BeTrue())
		Expect(pools.setCalls).To(BeZero())
		Expect(sink.records).To(BeEmpty())
	})

	It("allows only one run per region pair", func() {
		release, err := locks.TryAcquire(runlock.Key("us-east", "eu-west"))
		Expect(err).ToNot(HaveOccurred())
		defer release()

		_, err = orchestrator.Run(context.TODO(), request)
		Expect(errors.Is(err, runlock.ErrRunInProgress)).To(BeTrue())
	})

	It("honors cancellation before the reroute is submitted", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := orchestrator.Run(ctx, request)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(pools.setCalls).To(BeZero())
	})

	It("surfaces an audit append failure", func() {
		sink.err = errors.New("disk full")

		_, err := orchestrator.Run(context.TODO(), request)
		Expect(err).To(MatchError(ContainSubstring("disk full")))
	})
})
