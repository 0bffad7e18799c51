// Package app wires the rcprobe command line.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/rcprobe/internal/config"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitCodeNormal = 0
	exitCodeError  = 1
)

type app struct {
	v    *viper.Viper
	log  *logrus.Logger
	root modular.RootLogger
}

func Execute(version string, args []string, stdout, stderr io.Writer) int {
	a := &app{v: viper.New(), log: ros.NewLogger()}
	a.log.SetOutput(stderr)
	a.root = ros.RootLogger(a.log)

	rootCmd := a.makeRootCmd(version)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		prefixedUserError(stderr, "error: %v", err)
		return exitCodeError
	}
	return exitCodeNormal
}

func (a *app) makeRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rcprobe",
		Short: "Check that an ArduPilot SITL graph publishes RC telemetry",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			if err := config.Init(a.v, file); err != nil {
				return err
			}
			for _, entry := range ros.SetLogLevels(a.root, a.v.GetString("loglevel")) {
				a.module("app").Warnf("Unknown log level %q, using warning", entry)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.InitDefaultVersionFlag()

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Read configuration from this file instead of searching for rcprobe.yaml.")
	flags.String("loglevel", "WARNING", "Set the desired level of logging (one of: PANIC, FATAL, ERROR, WARNING, INFO, DEBUG, TRACE). "+
		"Append module=LEVEL entries to override single modules, e.g. warning,launch=debug.")
	_ = a.v.BindPFlag("loglevel", flags.Lookup("loglevel"))
	flags.String("master-uri", "", "URI of the ROS master. Defaults to ROS_MASTER_URI.")
	_ = a.v.BindPFlag("master.uri", flags.Lookup("master-uri"))
	flags.String("topic", "", "Topic to observe.")
	_ = a.v.BindPFlag("topic", flags.Lookup("topic"))

	rootCmd.AddCommand(a.makeRunCmd())
	rootCmd.AddCommand(a.makeListenCmd())
	rootCmd.AddCommand(a.makeMasterCmd())
	rootCmd.AddCommand(a.makeTalkerCmd())

	return rootCmd
}

// module returns the logger of the named module, e.g. "rosmaster" or
// "scenario.launch".
func (a *app) module(name string) modular.ModuleLogger {
	return ros.Submodule(a.root, name)
}

// nodeOptions returns the options shared by every node the CLI creates.
func (a *app) nodeOptions() []ros.NodeOption {
	opts := []ros.NodeOption{ros.WithLogger(a.log), ros.WithoutSignalHandler()}
	if uri := a.v.GetString("master.uri"); uri != "" {
		opts = append(opts, ros.WithMasterURI(uri))
	}
	return opts
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// anonymousName makes base unique so several listeners can share a master.
func anonymousName(base string) string {
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// prefixedUserError prints an error message to w and prefixes it with
// the name of the program file (e.g. "rcprobe: something bad happened.").
func prefixedUserError(w io.Writer, format string, a ...interface{}) {
	basename := filepath.Base(os.Args[0])
	message := fmt.Sprintf(format, a...)
	if strings.HasSuffix(message, "\n") {
		fmt.Fprintf(w, "%s: %s", basename, message)
	} else {
		fmt.Fprintf(w, "%s: %s\n", basename, message)
	}
}
