package app

import (
	"fmt"

	"github.com/edwinhayes/rcprobe/rosmaster"
	"github.com/spf13/cobra"
)

func (a *app) makeMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Run an in-process ROS master until interrupted",
		Args:  cobra.NoArgs,
		RunE:  a.runMaster,
	}
	cmd.Flags().String("addr", "", "Listen address. Defaults to master.addr from the configuration.")
	return cmd
}

func (a *app) runMaster(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.v.GetString("master.addr")
	}
	master := rosmaster.New(rosmaster.WithLogger(a.module("rosmaster")))
	uri, err := master.Start(addr)
	if err != nil {
		return err
	}
	defer master.Shutdown()
	fmt.Fprintf(cmd.OutOrStdout(), "ROS_MASTER_URI=%s\n", uri)

	<-ctx.Done()
	return nil
}
