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
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/meridian-ops/meridian/pkg/log"
	"github.com/meridian-ops/meridian/pkg/monitoring"
	"github.com/meridian-ops/meridian/pkg/notify"
	"github.com/meridian-ops/meridian/pkg/routing"
	"github.com/meridian-ops/meridian/pkg/runlock"
)

// The pipeline step names, in execution order
const (
	StepReroute    = "reroute"
	StepScale      = "scale-capacity"
	StepSyncConfig = "sync-config"
	StepMonitoring = "update-monitoring"
	StepNotify     = "notify"
)

// ErrInvalidRequest flags a failover request rejected before any
// external mutation
var ErrInvalidRequest = errors.New("invalid failover request")

// Request describes a declared regional failure
type Request struct {
	FailedRegion string `json:"failedRegion"`
	TargetRegion string `json:"targetRegion"`
	Reason       string `json:"reason"`

	// Service and Namespace identify the workload being evacuated
	Service   string `json:"service"`
	Namespace string `json:"namespace"`

	// LoadBalancerID is the global load balancer carrying the regional
	// pools
	LoadBalancerID string `json:"loadBalancerID"`

	// TargetContext is the kubeconfig context of the target region
	// cluster; empty means the current context already points there
	TargetContext string `json:"targetContext,omitempty"`
}

// CapacityControl is the slice of the cluster control plane the
// orchestrator needs
type CapacityControl interface {
	GetReplicas(ctx context.Context, deployment, namespace string) (ready, desired int32, err error)
	SetReplicas(ctx context.Context, deployment, namespace string, count int32) error
	WaitReady(ctx context.Context, deployment, namespace string, timeout time.Duration) error
	SwitchContext(cluster string) error
	SnapshotConfig(ctx context.Context, service, namespace string) ([]string, error)
}

// Options tunes an orchestrator
type Options struct {
	// ScaleFactor multiplies the target region replica count
	ScaleFactor float64

	// ScaleReadyTimeout bounds the wait for the scaled replicas
	ScaleReadyTimeout time.Duration

	// WriteRetries bounds the retried control plane writes
	WriteRetries int
}

// DefaultOptions returns the options used when none are supplied
func DefaultOptions() Options {
	return Options{
		ScaleFactor:       1.5,
		ScaleReadyTimeout: 5 * time.Minute,
		WriteRetries:      3,
	}
}

// Orchestrator runs the failover pipeline. The steps execute strictly
// in order and every failure is isolated to its step: rerouting is the
// only safety-critical action, everything after it is operational
// hygiene that still deserves a best-effort attempt.
type Orchestrator struct {
	pools    routing.PoolControl
	capacity CapacityControl
	monitor  monitoring.Registrar
	notifier notify.Client
	sink     AuditSink
	locks    *runlock.Registry
	opts     Options
}

// NewOrchestrator creates a failover orchestrator
func NewOrchestrator(
	pools routing.PoolControl,
	capacity CapacityControl,
	monitor monitoring.Registrar,
	notifier notify.Client,
	sink AuditSink,
	locks *runlock.Registry,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		pools:    pools,
		capacity: capacity,
		monitor:  monitor,
		notifier: notifier,
		sink:     sink,
		locks:    locks,
		opts:     opts,
	}
}

// Run executes the failover pipeline and returns the audit record of
// the run. The returned error covers the request being rejected, the
// run being canceled before traffic moved, or the audit append failing;
// step failures live inside the record, not in the error.
func (o *Orchestrator) Run(ctx context.Context, request Request) (Record, error) {
	record := Record{
		ID:           uuid.New().String(),
		FailedRegion: request.FailedRegion,
		TargetRegion: request.TargetRegion,
		Reason:       request.Reason,
		StartedAt:    time.Now(),
		Status:       StatusInProgress,
	}

	if err := validateRequest(request); err != nil {
		return record, err
	}

	release, err := o.locks.TryAcquire(runlock.Key(request.FailedRegion, request.TargetRegion))
	if err != nil {
		return record, err
	}
	defer release()

	contextLogger := log.FromContext(ctx).WithValues(
		"failedRegion", request.FailedRegion,
		"targetRegion", request.TargetRegion,
		"run", record.ID,
	)
	ctx = log.IntoContext(ctx, contextLogger)
	contextLogger.Info("Failover starting", "reason", request.Reason)

	// cancellation is honored only before the reroute is submitted;
	// reverting a reroute mid-incident is a risk decision that does
	// not belong here
	if err := ctx.Err(); err != nil {
		return record, err
	}
	runCtx := log.IntoContext(context.WithoutCancel(ctx), contextLogger)

	record.append(StepReroute, o.reroute(runCtx, request))
	record.append(StepScale, o.scaleTarget(runCtx, request))
	record.append(StepSyncConfig, o.syncConfig(runCtx, request, &record))
	record.append(StepMonitoring,
		o.monitor.RegisterRecoveryAlert(runCtx, request.FailedRegion, request.Reason, record.StartedAt))
	record.append(StepNotify, o.sendNotification(runCtx, request, &record))
	record.finalize()

	contextLogger.Info("Failover finished",
		"status", record.Status, "failedSteps", record.FailedSteps())

	if err := o.sink.Append(runCtx, record); err != nil {
		contextLogger.Error(err, "Cannot persist the failover record")
		return record, fmt.Errorf("while persisting failover record %s: %w", record.ID, err)
	}

	return record, nil
}

// reroute flips the global routing pool set away from the failed
// region. Read-modify-write against the server-side state read
// immediately before the mutation, retried as a transaction: the
// authority over the pool set lives outside this process, so a re-read
// precedes every attempt.
func (o *Orchestrator) reroute(ctx context.Context, request Request) error {
	description := fmt.Sprintf("failover %s to %s: %s",
		request.FailedRegion, request.TargetRegion, request.Reason)

	err := retry.OnError(o.backoff(), func(error) bool { return true }, func() error {
		current, err := o.pools.GetPools(ctx, request.LoadBalancerID)
		if err != nil {
			return err
		}

		desired := routing.FailoverPools(current, request.FailedRegion, request.TargetRegion)
		if equalPools(current, desired) {
			return nil
		}

		return o.pools.SetPools(ctx, request.LoadBalancerID, desired, description)
	})
	if err != nil {
		return fmt.Errorf("rerouting pool set failed after retries: %w", err)
	}

	log.FromContext(ctx).Info("Traffic rerouted away from failed region")
	return nil
}

// scaleTarget grows the target region capacity and waits for it. A
// readiness timeout is reported, not fatal: traffic has already moved.
func (o *Orchestrator) scaleTarget(ctx context.Context, request Request) error {
	if request.TargetContext != "" {
		if err := o.capacity.SwitchContext(request.TargetContext); err != nil {
			return fmt.Errorf("cannot reach target region cluster: %w", err)
		}
	}

	_, desired, err := o.capacity.GetReplicas(ctx, request.Service, request.Namespace)
	if err != nil {
		return fmt.Errorf("cannot read target capacity: %w", err)
	}

	scaled := int32(math.Ceil(float64(desired) * o.opts.ScaleFactor))
	err = retry.OnError(o.backoff(), func(error) bool { return true }, func() error {
		return o.capacity.SetReplicas(ctx, request.Service, request.Namespace, scaled)
	})
	if err != nil {
		return fmt.Errorf("scaling target region to %d replicas failed after retries: %w", scaled, err)
	}

	log.FromContext(ctx).Info("Target region scaled",
		"deployment", request.Service, "replicas", scaled)

	if err := o.capacity.WaitReady(ctx, request.Service, request.Namespace,
		o.opts.ScaleReadyTimeout); err != nil {
		return fmt.Errorf("scaled to %d replicas, not all ready within %s: %w",
			scaled, o.opts.ScaleReadyTimeout, err)
	}

	return nil
}

// syncConfig captures the configuration inventory of the target region
// into the record, a diagnostic artifact only
func (o *Orchestrator) syncConfig(ctx context.Context, request Request, record *Record) error {
	snapshot, err := o.capacity.SnapshotConfig(ctx, request.Service, request.Namespace)
	if err != nil {
		return fmt.Errorf("cannot snapshot configuration: %w", err)
	}
	record.Snapshot = snapshot
	return nil
}

func (o *Orchestrator) sendNotification(ctx context.Context, request Request, record *Record) error {
	return o.notifier.Send(ctx, notify.Event{
		Title:    fmt.Sprintf("Regional failover: %s moved to %s", request.FailedRegion, request.TargetRegion),
		Severity: notify.SeverityCritical,
		Fields: map[string]string{
			"failedRegion": request.FailedRegion,
			"targetRegion": request.TargetRegion,
			"reason":       request.Reason,
			"service":      request.Service,
			"run":          record.ID,
			"startedAt":    record.StartedAt.UTC().Format(time.RFC3339),
		},
	})
}

func (o *Orchestrator) backoff() wait.Backoff {
	return wait.Backoff{
		Steps:    o.opts.WriteRetries,
		Duration: 500 * time.Millisecond,
		Factor:   2.0,
		Jitter:   0.1,
	}
}

func validateRequest(request Request) error {
	if request.FailedRegion == "" || request.TargetRegion == "" {
		return fmt.Errorf("%w: failed and target regions are required", ErrInvalidRequest)
	}
	if request.FailedRegion == request.TargetRegion {
		return fmt.Errorf("%w: cannot fail over %s onto itself", ErrInvalidRequest, request.FailedRegion)
	}
	if request.Service == "" || request.Namespace == "" {
		return fmt.Errorf("%w: service and namespace are required", ErrInvalidRequest)
	}
	if request.LoadBalancerID == "" {
		return fmt.Errorf("%w: load balancer ID is required", ErrInvalidRequest)
	}
	return nil
}

func equalPools(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
