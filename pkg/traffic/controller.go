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

// Package traffic drives a weighted traffic split between two versions
// of a service toward a target weight, verifying that the routing layer
// converged within tolerance
package traffic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/meridian-ops/meridian/pkg/log"
	"github.com/meridian-ops/meridian/pkg/metrics"
	"github.com/meridian-ops/meridian/pkg/routing"
	"github.com/meridian-ops/meridian/pkg/runlock"
)

// Phase is the state of a traffic shift run
type Phase string

// The traffic shift state machine
const (
	PhaseInitializing        Phase = "Initializing"
	PhaseConfiguringRoute    Phase = "ConfiguringRoute"
	PhaseAwaitingConvergence Phase = "AwaitingConvergence"
	PhaseVerified            Phase = "Verified"
	PhaseCompleted           Phase = "Completed"
	PhaseFailed              Phase = "Failed"
)

// ErrInvalidSplit flags a request rejected before any external mutation
var ErrInvalidSplit = errors.New("invalid traffic split request")

// Split describes the requested traffic shift
type Split struct {
	Service         string            `json:"service"`
	Namespace       string            `json:"namespace"`
	FromVersion     string            `json:"fromVersion"`
	ToVersion       string            `json:"toVersion"`
	TargetWeightPct int32             `json:"targetWeightPct"`
	Mechanism       routing.Mechanism `json:"mechanism,omitempty"`
}

// Result is the final report of a run
type Result struct {
	Split          Split   `json:"split"`
	Phase          Phase   `json:"phase"`
	ObservedWeight float64 `json:"observedWeight"`
	Deviation      float64 `json:"deviation"`
	Message        string  `json:"message,omitempty"`
}

// Options tunes a controller
type Options struct {
	// BaselineVersion is used as fromVersion when the live selector is
	// missing
	BaselineVersion string

	// SettleDelay is the grace period between configuring the route and
	// verifying; the routing layer offers no convergence signal, so
	// this is a fixed wait, not polling
	SettleDelay time.Duration

	// ToleranceMargin is the accepted deviation between requested and
	// observed weight, in percentage points
	ToleranceMargin float64

	// VerifyWindow is the trailing window of the observed-ratio query
	VerifyWindow time.Duration

	// WriteRetries bounds the retried routing mutations
	WriteRetries int

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the options used when none are supplied
func DefaultOptions(baselineVersion string) Options {
	return Options{
		BaselineVersion: baselineVersion,
		SettleDelay:     30 * time.Second,
		ToleranceMargin: 10,
		VerifyWindow:    2 * time.Minute,
		WriteRetries:    3,
	}
}

// Controller runs traffic shifts. Safe for concurrent use; the run lock
// guarantees at most one active run per (service, namespace).
type Controller struct {
	routes  routing.RouteControl
	gateway metrics.Gateway
	locks   *runlock.Registry
	opts    Options
}

// NewController creates a traffic shift controller
func NewController(routes routing.RouteControl, gateway metrics.Gateway,
	locks *runlock.Registry, opts Options,
) *Controller {
	if opts.sleep == nil {
		opts.sleep = sleepContext
	}
	return &Controller{routes: routes, gateway: gateway, locks: locks, opts: opts}
}

// Shift drives the split toward the target weight.
//
// A tolerance violation during verification ends the run in PhaseFailed
// with a deviation report: traffic stays where it was configured, the
// rollback decision belongs to the caller. An error return means the
// run could not be driven at all (invalid request, routing layer
// unreachable after retries, canceled).
func (c *Controller) Shift(ctx context.Context, split Split) (Result, error) {
	result := Result{Split: split, Phase: PhaseInitializing}

	if err := validate(split); err != nil {
		return result, err
	}

	release, err := c.locks.TryAcquire(runlock.Key(split.Service, split.Namespace))
	if err != nil {
		return result, err
	}
	defer release()

	contextLogger := log.FromContext(ctx).WithValues(
		"service", split.Service,
		"namespace", split.Namespace,
		"toVersion", split.ToVersion,
		"targetWeight", split.TargetWeightPct,
	)
	ctx = log.IntoContext(ctx, contextLogger)

	// Initializing: resolve the mechanism once and the fromVersion if
	// not supplied; both are carried through the rest of the run
	split, err = c.initialize(ctx, split)
	if err != nil {
		return result, err
	}
	result.Split = split
	contextLogger.Info("Traffic shift starting",
		"fromVersion", split.FromVersion, "mechanism", split.Mechanism)

	if err := stepGate(ctx); err != nil {
		return result, err
	}

	// ConfiguringRoute: idempotent mutation, retried on transient
	// failure without restarting from Initializing
	result.Phase = PhaseConfiguringRoute
	if err := c.configureRoute(ctx, split); err != nil {
		return result, err
	}

	if err := stepGate(ctx); err != nil {
		return result, err
	}

	// AwaitingConvergence: fixed settle delay, the routing layer
	// propagates asynchronously and exposes no convergence signal
	result.Phase = PhaseAwaitingConvergence
	if err := c.opts.sleep(ctx, c.opts.SettleDelay); err != nil {
		return result, err
	}

	// Verified: compare the observed traffic ratio with the request
	result.Phase = PhaseVerified
	observed := c.gateway.Query(ctx,
		versionShareExpression(split.Service, split.Namespace, split.ToVersion),
		c.opts.VerifyWindow)
	if !observed.Present {
		result.ObservedWeight = float64(split.TargetWeightPct)
		result.Message = "verification skipped: no traffic data for the window"
		contextLogger.Info("No traffic data to verify the split, accepting the configured state")
	} else {
		result.ObservedWeight = observed.Value
		result.Deviation = math.Abs(observed.Value - float64(split.TargetWeightPct))
		if result.Deviation >= c.opts.ToleranceMargin {
			result.Phase = PhaseFailed
			result.Message = fmt.Sprintf(
				"observed weight %.1f deviates from target %d by %.1f points (tolerance %.1f)",
				observed.Value, split.TargetWeightPct, result.Deviation, c.opts.ToleranceMargin)
			contextLogger.Info("Traffic split did not converge", "deviation", result.Deviation)
			return result, nil
		}
	}

	if split.TargetWeightPct < 100 {
		contextLogger.Info("Traffic shift verified", "observedWeight", result.ObservedWeight)
		return result, nil
	}

	if err := stepGate(ctx); err != nil {
		return result, err
	}

	// Completed: the rollout reached 100, point the live selector at
	// the new version and drop the weighted rules
	if err := c.routes.SetSelector(ctx, split.Service, split.Namespace, split.ToVersion); err != nil {
		return result, err
	}
	if err := c.routes.RemoveWeightedRoute(ctx, split.Service, split.Namespace); err != nil {
		return result, err
	}
	result.Phase = PhaseCompleted
	contextLogger.Info("Traffic shift completed, selector now points at the new version")

	return result, nil
}

// Rollback is the explicit inverse operation of a forward rollout: all
// traffic back to fromVersion and the weighted rules dropped
func (c *Controller) Rollback(ctx context.Context, split Split) error {
	if split.FromVersion == "" {
		return fmt.Errorf("%w: rollback requires an explicit fromVersion", ErrInvalidSplit)
	}

	release, err := c.locks.TryAcquire(runlock.Key(split.Service, split.Namespace))
	if err != nil {
		return err
	}
	defer release()

	mechanism := split.Mechanism
	if mechanism == "" {
		if mechanism, err = c.routes.Detect(ctx, split.Service, split.Namespace); err != nil {
			return err
		}
	}

	splits := map[string]int32{split.FromVersion: 100, split.ToVersion: 0}
	if err := c.setWeightedRouteWithRetry(ctx, mechanism, split.Service, split.Namespace, splits); err != nil {
		return err
	}
	if err := c.routes.SetSelector(ctx, split.Service, split.Namespace, split.FromVersion); err != nil {
		return err
	}

	log.FromContext(ctx).Info("Traffic rolled back",
		"service", split.Service, "namespace", split.Namespace, "version", split.FromVersion)
	return c.routes.RemoveWeightedRoute(ctx, split.Service, split.Namespace)
}

func (c *Controller) initialize(ctx context.Context, split Split) (Split, error) {
	if split.Mechanism == "" {
		mechanism, err := c.routes.Detect(ctx, split.Service, split.Namespace)
		if err != nil {
			return split, err
		}
		split.Mechanism = mechanism
	}

	if split.FromVersion == "" {
		liveVersion, err := c.routes.GetSelector(ctx, split.Service, split.Namespace)
		if err != nil {
			return split, err
		}
		if liveVersion == "" {
			liveVersion = c.opts.BaselineVersion
		}
		split.FromVersion = liveVersion
	}

	if split.FromVersion == split.ToVersion {
		return split, fmt.Errorf("%w: shifting %s onto itself", ErrInvalidSplit, split.ToVersion)
	}

	// a forward rollout only moves toward 100; going back is the
	// explicit Rollback operation
	current, known, err := c.routes.GetWeight(ctx, split.Mechanism,
		split.Service, split.Namespace, split.ToVersion)
	if err != nil {
		return split, err
	}
	if known && split.TargetWeightPct < current {
		return split, fmt.Errorf(
			"%w: target weight %d is below the configured %d, use an explicit rollback",
			ErrInvalidSplit, split.TargetWeightPct, current)
	}

	return split, nil
}

func (c *Controller) configureRoute(ctx context.Context, split Split) error {
	splits := map[string]int32{
		split.ToVersion:   split.TargetWeightPct,
		split.FromVersion: 100 - split.TargetWeightPct,
	}
	return c.setWeightedRouteWithRetry(ctx, split.Mechanism, split.Service, split.Namespace, splits)
}

// setWeightedRouteWithRetry retries the idempotent routing mutation
// with bounded exponential backoff
func (c *Controller) setWeightedRouteWithRetry(ctx context.Context, mechanism routing.Mechanism,
	service, namespace string, splits map[string]int32,
) error {
	backoff := wait.Backoff{
		Steps:    c.opts.WriteRetries,
		Duration: 500 * time.Millisecond,
		Factor:   2.0,
		Jitter:   0.1,
	}
	err := retry.OnError(backoff,
		func(err error) bool { return !errors.Is(err, routing.ErrUnknownMechanism) },
		func() error {
			return c.routes.SetWeightedRouteVia(ctx, mechanism, service, namespace, splits)
		})
	if err != nil {
		return fmt.Errorf("routing mutation failed after %d attempts: %w", c.opts.WriteRetries, err)
	}
	return nil
}

func validate(split Split) error {
	if split.Service == "" || split.Namespace == "" {
		return fmt.Errorf("%w: service and namespace are required", ErrInvalidSplit)
	}
	if split.ToVersion == "" {
		return fmt.Errorf("%w: toVersion is required", ErrInvalidSplit)
	}
	if split.TargetWeightPct < 0 || split.TargetWeightPct > 100 {
		return fmt.Errorf("%w: target weight %d is outside 0-100", ErrInvalidSplit, split.TargetWeightPct)
	}
	return nil
}

// stepGate makes the run cancellable between state machine steps, never
// mid-mutation
func stepGate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func versionShareExpression(service, namespace, version string) string {
	return fmt.Sprintf(
		`100 * sum(rate(http_requests_total{service=%q,namespace=%q,version=%q}[{{window}}]))`+
			` / sum(rate(http_requests_total{service=%q,namespace=%q}[{{window}}]))`,
		service, namespace, version, service, namespace)
}
