// Package report turns the scenario event stream into live progress
// output and an end-of-run summary.
package report

import "time"

// RunStart is the initial value of the event stream.
type RunStart struct {
	RunID string
}

// RunEnd tells observers that no further events will follow.
type RunEnd struct{}

// ScenarioStart marks the beginning of one transport variant.
type ScenarioStart struct {
	Scenario string
}

// ProcessStarted reports a dependency that came up inside its window.
type ProcessStarted struct {
	Scenario string
	Process  string
	After    time.Duration
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Scenario string
	Passed   bool
	Explain  string
	Received uint64
	Latency  time.Duration
}

// Interface defines the methods of an observer.
type Interface interface {
	// Start fires up the observer in a new goroutine.
	Start() error

	// Finalize waits for the observer to receive RunEnd, process it,
	// and shut itself down.
	Finalize() error
}
