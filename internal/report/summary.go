package report

import (
	"fmt"
	"io"
	"sort"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/imkira/go-observer"
)

// SummaryObserver prints scenario progress as it happens and a summary
// once the run ends.
type SummaryObserver struct {
	done   chan struct{}
	prop   observer.Property
	out    io.Writer
	log    modular.Logger
	failed int
}

func NewSummaryObserver(prop observer.Property, out io.Writer, log modular.Logger) *SummaryObserver {
	return &SummaryObserver{
		done: make(chan struct{}),
		prop: prop,
		out:  out,
		log:  log,
	}
}

// Start launches the consumer. The stream is attached before Start
// returns so no event published afterwards is missed.
func (so *SummaryObserver) Start() error {
	stream := so.prop.Observe()
	go func() {
		defer close(so.done)
		var (
			runID   string
			results map[string]ScenarioResult
		)
		for {
			switch event := stream.Value().(type) {
			case RunStart:
				runID = event.RunID
				results = make(map[string]ScenarioResult)
			case ScenarioStart:
				fmt.Fprintf(so.out, "=== %s\n", event.Scenario)
			case ProcessStarted:
				fmt.Fprintf(so.out, "    %s started after %s\n", event.Process, event.After.Round(1e6))
			case ScenarioResult:
				if results == nil {
					results = make(map[string]ScenarioResult)
				}
				results[event.Scenario] = event
				if event.Passed {
					fmt.Fprintf(so.out, "%s %s: %d message(s), first after %s\n",
						iconStatus(true), event.Scenario, event.Received, event.Latency.Round(1e6))
				} else {
					fmt.Fprintf(so.out, "%s %s: %s\n", iconStatus(false), event.Scenario, event.Explain)
				}
			case RunEnd:
				so.failed = so.printSummary(runID, results)
				return
			default:
				so.log.Debugf("Ignoring event %+v", event)
			}

			<-stream.Changes()
			stream.Next()
		}
	}()
	return nil
}

func (so *SummaryObserver) printSummary(runID string, results map[string]ScenarioResult) int {
	names := make([]string, 0, len(results))
	failed := 0
	for name, r := range results {
		names = append(names, name)
		if !r.Passed {
			failed++
		}
	}
	sort.Strings(names)
	fmt.Fprintf(so.out, "\nSummary %s: %s %d/%d scenarios passed\n",
		runID, iconStatus(failed == 0), len(results)-failed, len(results))
	for _, name := range names {
		fmt.Fprintf(so.out, "\t%s %s\n", iconStatus(results[name].Passed), name)
	}
	return failed
}

// Finalize waits for RunEnd to be processed.
func (so *SummaryObserver) Finalize() error {
	<-so.done
	return nil
}

// Failed is the number of failed scenarios. It is valid after Finalize.
func (so *SummaryObserver) Failed() int {
	return so.failed
}

func iconStatus(ok bool) string {
	if ok {
		return "☑"
	}
	return "☐"
}
