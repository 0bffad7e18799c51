package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edwinhayes/rcprobe/internal/scenario"
	"github.com/edwinhayes/rcprobe/msgs/ardupilot_msgs"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/edwinhayes/rcprobe/rosmaster"
	"github.com/matryer/is"
	"github.com/sirupsen/logrus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "rcprobe.yaml")
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestParseKinds(t *testing.T) {
	is := is.New(t)
	kinds, err := parseKinds(nil)
	is.NoErr(err)
	is.Equal(kinds, scenario.AllTransports)
	kinds, err = parseKinds([]string{"udp"})
	is.NoErr(err)
	is.Equal(kinds, []scenario.TransportKind{scenario.UDP})
	_, err = parseKinds([]string{"ethernet"})
	is.True(err != nil)
}

func TestAnonymousName(t *testing.T) {
	is := is.New(t)
	a, b := anonymousName("rc_listener"), anonymousName("rc_listener")
	is.True(strings.HasPrefix(a, "rc_listener_"))
	is.Equal(len(a), len("rc_listener_")+12)
	is.True(a != b)
}

func TestUnknownTransport(t *testing.T) {
	is := is.New(t)
	var stdout, stderr bytes.Buffer
	code := Execute("test", []string{"run", "can", "--config", writeConfig(t, "loglevel: error\n")}, &stdout, &stderr)
	is.Equal(code, exitCodeError)
	is.True(strings.Contains(stderr.String(), "unknown transport"))
}

func TestModuleLogLevels(t *testing.T) {
	is := is.New(t)
	var stdout, stderr bytes.Buffer
	code := Execute("test", []string{
		"run", "can",
		"--config", writeConfig(t, "loglevel: error,app=info,launch=loud\n"),
	}, &stdout, &stderr)
	is.Equal(code, exitCodeError)

	out := stderr.String()
	is.True(strings.Contains(out, "launch=loud"))
	is.True(strings.Contains(out, "module=app"))
	is.True(strings.Contains(out, "unknown transport"))
}

func TestRunStartupFailure(t *testing.T) {
	is := is.New(t)
	metricsFile := filepath.Join(t.TempDir(), "rcprobe.prom")
	cfg := writeConfig(t, `
loglevel: error
timeouts:
  start: 100ms
  stop: 1s
scenarios:
  udp:
    processes:
      - name: micro_ros_agent
        command: sleep 30
      - name: mavproxy
        command: sleep 30
        ready_pattern: "never printed"
      - name: sitl
        command: sleep 30
`)
	var stdout, stderr bytes.Buffer
	code := Execute("test", []string{
		"run", "udp",
		"--config", cfg,
		"--embedded-master", "--master-addr", "127.0.0.1:0",
		"--metrics-file", metricsFile,
	}, &stdout, &stderr)
	is.Equal(code, exitCodeError)

	out := stdout.String()
	is.True(strings.Contains(out, "=== udp"))
	is.True(strings.Contains(out, "micro_ros_agent started after"))
	is.True(strings.Contains(out, "mavproxy did not start"))
	is.True(strings.Contains(out, "0/1 scenarios passed"))

	body, err := os.ReadFile(metricsFile)
	is.NoErr(err)
	is.True(strings.Contains(string(body), `rcprobe_scenario_runs_total{result="fail",scenario="udp"} 1`))
}

func TestListen(t *testing.T) {
	is := is.New(t)
	master := rosmaster.New(rosmaster.WithLogger(ros.Submodule(ros.RootLogger(logrus.New()), "rosmaster")))
	uri, err := master.Start("127.0.0.1:0")
	is.NoErr(err)
	t.Cleanup(master.Shutdown)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	talker, err := ros.NewNode("rc_talker", nil, ros.WithLogger(log), ros.WithMasterURI(uri), ros.WithoutSignalHandler())
	is.NoErr(err)
	defer talker.Shutdown()
	pub, err := talker.NewPublisher("ap/rc", ardupilot_msgs.MsgRc)
	is.NoErr(err)

	rate, err := ros.NewRate(50)
	is.NoErr(err)
	ctx, cancel := context.WithCancel(context.Background())
	published := make(chan error, 1)
	go func() { published <- publishRc(ctx, pub, &rate, 0) }()

	var stdout, stderr bytes.Buffer
	code := Execute("test", []string{
		"listen", "--anonymous", "--timeout", "5s",
		"--config", writeConfig(t, "loglevel: error\n"),
		"--master-uri", uri,
	}, &stdout, &stderr)
	cancel()
	is.NoErr(<-published)
	is.Equal(code, exitCodeNormal)
	is.True(strings.Contains(stdout.String(), "Received 'ap/rc'"))
}

func TestListenTimeout(t *testing.T) {
	is := is.New(t)
	master := rosmaster.New(rosmaster.WithLogger(ros.Submodule(ros.RootLogger(logrus.New()), "rosmaster")))
	uri, err := master.Start("127.0.0.1:0")
	is.NoErr(err)
	t.Cleanup(master.Shutdown)

	var stdout, stderr bytes.Buffer
	code := Execute("test", []string{
		"listen", "--timeout", "200ms",
		"--config", writeConfig(t, "loglevel: error\n"),
		"--master-uri", uri,
	}, &stdout, &stderr)
	is.Equal(code, exitCodeError)
	is.True(strings.Contains(stderr.String(), "Did not receive 'ap/rc' msgs."))
}

func TestPublishRcCount(t *testing.T) {
	is := is.New(t)
	pub := &countingPublisher{}
	rate, err := ros.NewRate(1000)
	is.NoErr(err)
	is.NoErr(publishRc(context.Background(), pub, &rate, 3))
	is.Equal(len(pub.msgs), 3)
	last := pub.msgs[2].(*ardupilot_msgs.Rc)
	is.Equal(last.Header.Seq, uint32(3))
	is.Equal(last.Header.FrameID, "0")
	is.Equal(len(last.Channels), len(last.ActiveOverrides))
}

type countingPublisher struct {
	msgs []ros.Message
}

func (p *countingPublisher) Publish(msg ros.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *countingPublisher) GetNumSubscribers() int { return 0 }
func (p *countingPublisher) Shutdown()              {}
