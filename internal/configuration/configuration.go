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

// Package configuration contains the settings of the meridian controller,
// read from an optional YAML file and overridable via environment variables
package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so that the YAML configuration can use
// human-readable values like "30s" or "5m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Unwrap returns the wrapped time.Duration
func (d Duration) Unwrap() time.Duration {
	return time.Duration(d)
}

// Data is the configuration of the controller
type Data struct {
	// PrometheusURL is the base URL of the metrics backend
	PrometheusURL string `yaml:"prometheusURL"`

	// LoadBalancerAPI is the base URL of the global load balancer
	// control API
	LoadBalancerAPI string `yaml:"loadBalancerAPI"`

	// LoadBalancerToken authenticates against the load balancer API
	LoadBalancerToken string `yaml:"loadBalancerToken"`

	// NotificationWebhook receives structured failover events
	NotificationWebhook string `yaml:"notificationWebhook"`

	// AuditDBPath is the path of the sqlite audit database
	AuditDBPath string `yaml:"auditDBPath"`

	// BaselineVersion is the version a traffic shift falls back to when
	// the live routing selector is missing
	BaselineVersion string `yaml:"baselineVersion"`

	// SettleDelay is the grace period between configuring a route and
	// verifying the observed traffic split
	SettleDelay Duration `yaml:"settleDelay"`

	// ToleranceMargin is the accepted deviation, in percentage points,
	// between the requested and the observed traffic split
	ToleranceMargin float64 `yaml:"toleranceMargin"`

	// ScaleFactor multiplies the target region replica count during a
	// failover
	ScaleFactor float64 `yaml:"scaleFactor"`

	// ScaleReadyTimeout bounds the wait for scaled replicas to become
	// ready
	ScaleReadyTimeout Duration `yaml:"scaleReadyTimeout"`

	// RequestTimeout bounds every single call to an external system
	RequestTimeout Duration `yaml:"requestTimeout"`

	// WriteRetries is the attempt ceiling for retried control plane
	// writes
	WriteRetries int `yaml:"writeRetries"`
}

// current is the configuration used by the process
var current = NewDefault()

// NewDefault creates a configuration holding the default values
func NewDefault() *Data {
	return &Data{
		PrometheusURL:     "http://prometheus:9090",
		AuditDBPath:       "/var/lib/meridian/audit.db",
		BaselineVersion:   "stable",
		SettleDelay:       Duration(30 * time.Second),
		ToleranceMargin:   10,
		ScaleFactor:       1.5,
		ScaleReadyTimeout: Duration(5 * time.Minute),
		RequestTimeout:    Duration(15 * time.Second),
		WriteRetries:      3,
	}
}

// Current returns the configuration of the process
func Current() *Data {
	return current
}

// ReadConfigFile loads the configuration from a YAML file, then applies
// the environment overrides. A missing file is not an error, the defaults
// stay in place.
func ReadConfigFile(path string) error {
	if path != "" {
		content, err := os.ReadFile(path) //#nosec
		if err != nil {
			return fmt.Errorf("while reading configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(content, current); err != nil {
			return fmt.Errorf("while parsing configuration file %q: %w", path, err)
		}
	}

	current.readEnvironment()
	return nil
}

func (d *Data) readEnvironment() {
	if v := os.Getenv("MERIDIAN_PROMETHEUS_URL"); v != "" {
		d.PrometheusURL = v
	}
	if v := os.Getenv("MERIDIAN_LB_API"); v != "" {
		d.LoadBalancerAPI = v
	}
	if v := os.Getenv("MERIDIAN_LB_TOKEN"); v != "" {
		d.LoadBalancerToken = v
	}
	if v := os.Getenv("MERIDIAN_WEBHOOK_URL"); v != "" {
		d.NotificationWebhook = v
	}
	if v := os.Getenv("MERIDIAN_AUDIT_DB"); v != "" {
		d.AuditDBPath = v
	}
	if v := os.Getenv("MERIDIAN_SCALE_FACTOR"); v != "" {
		if factor, err := strconv.ParseFloat(v, 64); err == nil && factor > 0 {
			d.ScaleFactor = factor
		}
	}
}
