package app

import (
	"fmt"
	"time"

	"github.com/edwinhayes/rcprobe/internal/scenario"
	"github.com/edwinhayes/rcprobe/observer"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/spf13/cobra"
)

func (a *app) makeListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen [<remap>...]",
		Short: "Wait for the first RC message on an already running graph",
		Long: "Wait for the first RC message on an already running graph. " +
			"Remaining arguments are passed to the node, e.g. _topic:=fmu/rc.",
		RunE: a.runListen,
	}
	cmd.Flags().Duration("timeout", scenario.DefaultDeliveryTimeout, "How long to wait for the first message.")
	cmd.Flags().Bool("anonymous", false, "Append a unique suffix to the node name.")
	return cmd
}

func (a *app) runListen(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	name := a.v.GetString("node.name")
	if anonymous, _ := cmd.Flags().GetBool("anonymous"); anonymous {
		name = anonymousName(name)
	}

	node, err := ros.NewNode(name, args, a.nodeOptions()...)
	if err != nil {
		return err
	}
	defer node.Shutdown()

	obs := observer.New(node, observer.WithLogger(a.module("observer")))
	if err := obs.Configure(a.v.GetString("topic")); err != nil {
		return err
	}
	if err := obs.ConfigureFromParams(node); err != nil {
		return err
	}
	subscribed := time.Now()
	if err := obs.Start(); err != nil {
		return err
	}
	defer obs.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-obs.Done():
	case <-timer.C:
		return &scenario.DeliveryTimeoutError{Topic: obs.Topic()}
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Received '%s' after %s\n", obs.Topic(), obs.FirstMessageAt().Sub(subscribed).Round(time.Millisecond))
	return nil
}
