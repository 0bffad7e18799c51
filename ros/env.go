package ros

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Environment is the ROS configuration read from the process
// environment.
type Environment struct {
	MasterURI string `env:"ROS_MASTER_URI" envDefault:"http://localhost:11311"`
	Hostname  string `env:"ROS_HOSTNAME"`
	IP        string `env:"ROS_IP"`
	Namespace string `env:"ROS_NAMESPACE"`
	Home      string `env:"ROS_HOME"`
	LogDir    string `env:"ROS_LOG_DIR"`
}

func loadEnvironment() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return e, errors.Wrap(err, "parse ROS environment")
	}
	if e.Home == "" {
		e.Home = filepath.Join(os.Getenv("HOME"), ".ros")
	}
	if e.LogDir == "" {
		e.LogDir = filepath.Join(e.Home, "log")
	}
	return e, nil
}
