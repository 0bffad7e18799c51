package app

import (
	"github.com/edwinhayes/rcprobe/internal/config"
	"github.com/edwinhayes/rcprobe/internal/metrics"
	"github.com/edwinhayes/rcprobe/internal/report"
	"github.com/edwinhayes/rcprobe/internal/scenario"
	"github.com/edwinhayes/rcprobe/rosmaster"
	"github.com/google/uuid"
	events "github.com/imkira/go-observer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) makeRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "run [serial|udp|all]",
		Short:     "Launch the SITL graph and wait for the first RC message",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"serial", "udp", "all"},
		RunE:      a.runScenarios,
	}

	cmd.Flags().Bool("embedded-master", true, "Start an in-process ROS master for the run. Ignored when --master-uri is given.")
	_ = a.v.BindPFlag("master.embedded", cmd.Flags().Lookup("embedded-master"))
	cmd.Flags().String("master-addr", "127.0.0.1:11311", "Listen address of the embedded master.")
	_ = a.v.BindPFlag("master.addr", cmd.Flags().Lookup("master-addr"))
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file in textfile format.")
	_ = a.v.BindPFlag("metrics.file", cmd.Flags().Lookup("metrics-file"))
	cmd.Flags().Bool("anonymous", false, "Append a unique suffix to the listener node name.")

	return cmd
}

func parseKinds(args []string) ([]scenario.TransportKind, error) {
	if len(args) == 0 || args[0] == "all" {
		return scenario.AllTransports, nil
	}
	kind, err := scenario.ParseTransportKind(args[0])
	if err != nil {
		return nil, err
	}
	return []scenario.TransportKind{kind}, nil
}

func (a *app) runScenarios(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args)
	if err != nil {
		return err
	}
	anonymous, _ := cmd.Flags().GetBool("anonymous")
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	masterURI := a.v.GetString("master.uri")
	if masterURI == "" && a.v.GetBool("master.embedded") {
		master := rosmaster.New(rosmaster.WithLogger(a.module("rosmaster")))
		uri, err := master.Start(a.v.GetString("master.addr"))
		if err != nil {
			return err
		}
		defer master.Shutdown()
		masterURI = uri
	}

	runID := uuid.NewString()
	prop := events.NewProperty(report.RunStart{RunID: runID})
	summary := report.NewSummaryObserver(prop, cmd.OutOrStdout(), a.module("report"))
	if err := summary.Start(); err != nil {
		return err
	}
	m := metrics.New()
	opts := []scenario.Option{
		scenario.WithLogger(a.module("scenario").WithField("run", runID)),
		scenario.WithEvents(prop),
		scenario.WithMetrics(m),
		scenario.WithStopGrace(config.StopGrace(a.v)),
	}
	if masterURI != "" {
		// ros1_bridge registers with the same master as the listener.
		opts = append(opts, scenario.WithProcessEnv("ROS_MASTER_URI="+masterURI))
	}
	runner := scenario.NewRunner(scenario.RosNodeFactory(a.log, masterURI, nil), opts...)

	var cfgErr error
	for _, kind := range kinds {
		cfg, err := config.Scenario(a.v, kind)
		if err != nil {
			cfgErr = errors.Wrapf(err, "%s scenario", kind)
			break
		}
		if anonymous {
			cfg.NodeName = anonymousName(cfg.NodeName)
		}
		if _, err := runner.Run(ctx, cfg); err != nil {
			a.module("app").WithField("scenario", kind).Debug(err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	prop.Update(report.RunEnd{})
	if err := summary.Finalize(); err != nil {
		return err
	}
	if file := a.v.GetString("metrics.file"); file != "" {
		if err := m.WriteTextfile(file); err != nil {
			return err
		}
	}
	if cfgErr != nil {
		return cfgErr
	}
	if n := summary.Failed(); n > 0 {
		return errors.Errorf("%d of %d scenario(s) failed", n, len(kinds))
	}
	return nil
}
