package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edwinhayes/rcprobe/internal/scenario"
	"github.com/matryer/is"
	"github.com/spf13/viper"
)

const sample = `
loglevel: debug
topic: fmu/rc
timeouts:
  start: 3s
  delivery: 15s
scenarios:
  udp:
    processes:
      - name: micro_ros_agent
        command: ros2 run micro_ros_agent micro_ros_agent udp4 --port 2019
        ready_pattern: "running"
      - name: mavproxy
        command: mavproxy.py --master tcp:127.0.0.1:5760
      - name: sitl
        command: arducopter --model quad
        dir: /tmp
        env:
          - SITL_SPEEDUP=2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "rcprobe.yaml")
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestDefaults(t *testing.T) {
	is := is.New(t)
	v := viper.New()
	SetDefaults(v)

	cfg, err := Scenario(v, scenario.Serial)
	is.NoErr(err)
	is.Equal(cfg.Topic, "ap/rc")
	is.Equal(cfg.StartTimeout, 2*time.Second)
	is.Equal(cfg.DeliveryTimeout, 10*time.Second)
	is.Equal(cfg.NodeName, "rc_listener")
	is.Equal(len(cfg.Processes), 5)
	is.Equal(cfg.Processes[4].Name, scenario.BridgeProcess)
	is.Equal(StopGrace(v), 5*time.Second)
	is.True(v.GetBool("master.embedded"))
}

func TestFromFile(t *testing.T) {
	is := is.New(t)
	v := viper.New()
	is.NoErr(Init(v, writeConfig(t, sample)))

	is.Equal(v.GetString("loglevel"), "debug")
	cfg, err := Scenario(v, scenario.UDP)
	is.NoErr(err)
	is.Equal(cfg.Topic, "fmu/rc")
	is.Equal(cfg.StartTimeout, 3*time.Second)
	is.Equal(cfg.DeliveryTimeout, 15*time.Second)
	is.Equal(len(cfg.Processes), 3)
	is.Equal(cfg.Processes[0].ReadyPattern, "running")
	is.Equal(cfg.Processes[2].Dir, "/tmp")
	is.Equal(cfg.Processes[2].Env, []string{"SITL_SPEEDUP=2"})

	// Serial is not declared in the file and falls back to the built-in
	// graph.
	cfg, err = Scenario(v, scenario.Serial)
	is.NoErr(err)
	is.Equal(cfg.Processes[0].Name, "virtual_ports")
}

func TestEnvOverride(t *testing.T) {
	is := is.New(t)
	t.Setenv("RCPROBE_TOPIC", "env/rc")
	t.Setenv("RCPROBE_TIMEOUTS_DELIVERY", "1s")
	v := viper.New()
	is.NoErr(Init(v, writeConfig(t, sample)))

	cfg, err := Scenario(v, scenario.UDP)
	is.NoErr(err)
	is.Equal(cfg.Topic, "env/rc")
	is.Equal(cfg.DeliveryTimeout, time.Second)
}

func TestMissingRequiredProcess(t *testing.T) {
	is := is.New(t)
	v := viper.New()
	is.NoErr(Init(v, writeConfig(t, `
scenarios:
  serial:
    processes:
      - name: sitl
        command: arducopter
`)))
	_, err := Scenario(v, scenario.Serial)
	is.True(err != nil)
}

func TestProcessWithoutCommand(t *testing.T) {
	is := is.New(t)
	v := viper.New()
	is.NoErr(Init(v, writeConfig(t, `
scenarios:
  udp:
    processes:
      - name: sitl
`)))
	_, err := Processes(v, scenario.UDP)
	is.True(err != nil)
}

func TestExplicitFileMissing(t *testing.T) {
	is := is.New(t)
	err := Init(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	is.True(err != nil)
}
