// Package metrics exposes Prometheus collectors for the container and the
// module host, and an HTTP service serving them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Container holds the collectors updated by the component container. A nil
// *Container is valid and records nothing.
type Container struct {
	Components    prometheus.Gauge         // Currently registered components
	Registered    prometheus.Counter       // Components registered since start
	Unregistered  prometheus.Counter       // Components unregistered since start
	BatchDuration *prometheus.HistogramVec // Lifecycle batch duration by phase
	HookFailures  *prometheus.CounterVec   // Hook failures by phase
	ScanDuration  *prometheus.HistogramVec // Scan duration by outcome
}

// NewContainer creates and registers the container collectors. The instance
// label distinguishes several containers sharing one registry.
func NewContainer(reg prometheus.Registerer, instanceName string) *Container {
	labels := prometheus.Labels{"instance": instanceName}

	components := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "hearth_container_components",
		Help:        "Number of components currently registered",
		ConstLabels: labels,
	})
	registered := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hearth_container_registered_total",
		Help:        "Total number of components registered",
		ConstLabels: labels,
	})
	unregistered := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hearth_container_unregistered_total",
		Help:        "Total number of components unregistered",
		ConstLabels: labels,
	})
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "hearth_container_batch_duration_seconds",
		Help:        "Duration of lifecycle batches",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"phase"})
	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hearth_container_hook_failures_total",
		Help:        "Total number of failed lifecycle hooks",
		ConstLabels: labels,
	}, []string{"phase"})
	scanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "hearth_container_scan_duration_seconds",
		Help:        "Duration of boundary scans",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"outcome"})

	reg.MustRegister(components, registered, unregistered, batchDuration, hookFailures, scanDuration)

	return &Container{
		Components:    components,
		Registered:    registered,
		Unregistered:  unregistered,
		BatchDuration: batchDuration,
		HookFailures:  hookFailures,
		ScanDuration:  scanDuration,
	}
}

// ComponentRegistered records one registration.
func (m *Container) ComponentRegistered() {
	if m == nil {
		return
	}
	m.Registered.Inc()
	m.Components.Inc()
}

// ComponentsUnregistered records n removals.
func (m *Container) ComponentsUnregistered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Unregistered.Add(float64(n))
	m.Components.Sub(float64(n))
}

// ObserveBatch records the duration of a lifecycle batch.
func (m *Container) ObserveBatch(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// HookFailure counts a failed hook.
func (m *Container) HookFailure(phase string) {
	if m == nil {
		return
	}
	m.HookFailures.WithLabelValues(phase).Inc()
}

// ObserveScan records a scan duration.
func (m *Container) ObserveScan(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ScanDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Modules holds the collectors updated by the module host.
type Modules struct {
	Status  *prometheus.GaugeVec   // 1 for the current status of each module
	Reloads *prometheus.CounterVec // Manifest reloads by outcome
}

// NewModules creates and registers the module host collectors.
func NewModules(reg prometheus.Registerer) *Modules {
	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hearth_module_status",
		Help: "Module status, 1 for the current status of each module",
	}, []string{"module", "status"})
	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_module_reloads_total",
		Help: "Total number of module manifest reloads",
	}, []string{"outcome"})

	reg.MustRegister(status, reloads)
	return &Modules{Status: status, Reloads: reloads}
}

// SetStatus marks status as the current one for module.
func (m *Modules) SetStatus(module string, status string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.Status.WithLabelValues(module, s).Set(v)
	}
}

// Forget removes every series of module.
func (m *Modules) Forget(module string) {
	if m == nil {
		return
	}
	m.Status.DeletePartialMatch(prometheus.Labels{"module": module})
}

// Reload counts a manifest reload.
func (m *Modules) Reload(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Reloads.WithLabelValues(outcome).Inc()
}
