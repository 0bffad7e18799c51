// Package metrics records rc check statistics in a Prometheus registry that
// can be exported in the node exporter textfile format.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for rcprobe. It satisfies
// observer.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived  *prometheus.CounterVec
	FirstMessageDelay *prometheus.HistogramVec
	ProcessStartDelay *prometheus.GaugeVec
	ScenarioRunsTotal *prometheus.CounterVec
	ScenarioDuration  *prometheus.HistogramVec
}

// New registers all metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.MessagesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rcprobe_messages_received_total",
			Help: "Messages delivered to the observer",
		},
		[]string{"topic"},
	)

	m.FirstMessageDelay = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rcprobe_first_message_delay_seconds",
			Help:    "Time from subscribing to the first delivered message",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // from 10ms to ~20s
		},
		[]string{"topic"},
	)

	m.ProcessStartDelay = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rcprobe_process_start_seconds",
			Help: "Time a dependency took to report started",
		},
		[]string{"scenario", "process"},
	)

	m.ScenarioRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rcprobe_scenario_runs_total",
			Help: "Scenario runs by outcome",
		},
		[]string{"scenario", "result"},
	)

	m.ScenarioDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rcprobe_scenario_duration_seconds",
			Help:    "Wall time of a scenario including process startup",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
		[]string{"scenario"},
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MessageReceived(topic string) {
	m.MessagesReceived.WithLabelValues(topic).Inc()
}

func (m *Metrics) FirstMessage(topic string, latency time.Duration) {
	m.FirstMessageDelay.WithLabelValues(topic).Observe(latency.Seconds())
}

func (m *Metrics) ProcessStarted(scenario, process string, after time.Duration) {
	m.ProcessStartDelay.WithLabelValues(scenario, process).Set(after.Seconds())
}

// ScenarioFinished counts a run as "pass" or "fail".
func (m *Metrics) ScenarioFinished(scenario string, passed bool, took time.Duration) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.ScenarioRunsTotal.WithLabelValues(scenario, result).Inc()
	m.ScenarioDuration.WithLabelValues(scenario).Observe(took.Seconds())
}

// WriteTextfile atomically writes all metrics to filename.
func (m *Metrics) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", filename)
	}
	return nil
}
