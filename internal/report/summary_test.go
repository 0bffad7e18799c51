package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/imkira/go-observer"
	"github.com/matryer/is"
	"github.com/sirupsen/logrus"
)

func TestSummaryObserver(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer
	prop := observer.NewProperty(RunStart{RunID: "run-1"})
	so := NewSummaryObserver(prop, &out, modular.NewRootLogger(logrus.New()))
	is.NoErr(so.Start())

	prop.Update(ScenarioStart{Scenario: "serial"})
	prop.Update(ProcessStarted{Scenario: "serial", Process: "sitl", After: 150 * time.Millisecond})
	prop.Update(ScenarioResult{Scenario: "serial", Passed: true, Received: 4, Latency: 300 * time.Millisecond})
	prop.Update(ScenarioStart{Scenario: "udp"})
	prop.Update(ScenarioResult{Scenario: "udp", Passed: false, Explain: "Did not receive 'ap/rc' msgs."})
	prop.Update(RunEnd{})
	is.NoErr(so.Finalize())

	text := out.String()
	is.True(strings.Contains(text, "=== serial"))
	is.True(strings.Contains(text, "sitl started after 150ms"))
	is.True(strings.Contains(text, "serial: 4 message(s)"))
	is.True(strings.Contains(text, "udp: Did not receive 'ap/rc' msgs."))
	is.True(strings.Contains(text, "Summary run-1: ☐ 1/2 scenarios passed"))
	is.Equal(so.Failed(), 1)
}

func TestSummaryAllPassed(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer
	prop := observer.NewProperty(RunStart{RunID: "run-2"})
	so := NewSummaryObserver(prop, &out, modular.NewRootLogger(logrus.New()))
	is.NoErr(so.Start())
	prop.Update(ScenarioResult{Scenario: "udp", Passed: true, Received: 1})
	prop.Update(RunEnd{})
	is.NoErr(so.Finalize())
	is.Equal(so.Failed(), 0)
	is.True(strings.Contains(out.String(), "☑ 1/1 scenarios passed"))
}
