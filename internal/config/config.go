// Package config maps rcprobe's viper keys onto scenario and node
// settings.
package config

import (
	"strings"
	"time"

	"github.com/edwinhayes/rcprobe/internal/launch"
	"github.com/edwinhayes/rcprobe/internal/scenario"
	"github.com/edwinhayes/rcprobe/observer"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	Name      = "rcprobe"
	EnvPrefix = "RCPROBE"
)

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "WARNING")
	v.SetDefault("topic", observer.DefaultTopic)
	v.SetDefault("timeouts.start", scenario.DefaultStartTimeout)
	v.SetDefault("timeouts.delivery", scenario.DefaultDeliveryTimeout)
	v.SetDefault("timeouts.stop", launch.DefaultStopGrace)
	v.SetDefault("master.uri", "")
	v.SetDefault("master.embedded", true)
	v.SetDefault("master.addr", "127.0.0.1:11311")
	v.SetDefault("node.name", scenario.DefaultNodeName)
	v.SetDefault("metrics.file", "")
}

// Init points v at the config file search path and the environment. An
// explicit file replaces the search path.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath("/etc/" + Name + "/")
		v.AddConfigPath("$HOME/." + Name)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}

type processEntry struct {
	Name         string   `mapstructure:"name"`
	Command      string   `mapstructure:"command"`
	ReadyPattern string   `mapstructure:"ready_pattern"`
	Env          []string `mapstructure:"env"`
	Dir          string   `mapstructure:"dir"`
}

// Processes returns the processes declared for kind, or the built-in
// graph when none are.
func Processes(v *viper.Viper, kind scenario.TransportKind) ([]launch.ProcessSpec, error) {
	key := "scenarios." + kind.String() + ".processes"
	if !v.IsSet(key) {
		return scenario.DefaultProcesses(kind), nil
	}
	var entries []processEntry
	if err := v.UnmarshalKey(key, &entries); err != nil {
		return nil, errors.Wrapf(err, "parse %s", key)
	}
	specs := make([]launch.ProcessSpec, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" || e.Command == "" {
			return nil, errors.Errorf("%s[%d]: name and command are required", key, i)
		}
		specs = append(specs, launch.ProcessSpec{
			Name:         e.Name,
			Command:      e.Command,
			Env:          e.Env,
			Dir:          e.Dir,
			ReadyPattern: e.ReadyPattern,
		})
	}
	return specs, nil
}

// Scenario builds the run configuration for kind.
func Scenario(v *viper.Viper, kind scenario.TransportKind) (scenario.Config, error) {
	procs, err := Processes(v, kind)
	if err != nil {
		return scenario.Config{}, err
	}
	cfg := scenario.Config{
		Kind:            kind,
		Processes:       procs,
		Topic:           v.GetString("topic"),
		StartTimeout:    v.GetDuration("timeouts.start"),
		DeliveryTimeout: v.GetDuration("timeouts.delivery"),
		NodeName:        v.GetString("node.name"),
	}
	if cfg.StartTimeout < 0 || cfg.DeliveryTimeout < 0 {
		return cfg, errors.New("timeouts must not be negative")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StopGrace is how long processes get between SIGTERM and SIGKILL.
func StopGrace(v *viper.Viper) time.Duration {
	if d := v.GetDuration("timeouts.stop"); d > 0 {
		return d
	}
	return launch.DefaultStopGrace
}
