package app

import (
	"context"

	"github.com/edwinhayes/rcprobe/msgs/ardupilot_msgs"
	"github.com/edwinhayes/rcprobe/msgs/std_msgs"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// sitlChannels are the PWM values SITL reports with sticks centred and
// the throttle low.
var sitlChannels = []int16{1500, 1500, 1000, 1500, 1800, 1000, 1000, 1800}

func (a *app) makeTalkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talker [<remap>...]",
		Short: "Publish RC messages like SITL does",
		RunE:  a.runTalker,
	}
	cmd.Flags().Float64("rate", 10, "Publish rate in Hz.")
	cmd.Flags().Int("count", 0, "Stop after this many messages (0 publishes until interrupted).")
	cmd.Flags().String("name", "rc_talker", "Node name.")
	cmd.Flags().Bool("anonymous", false, "Append a unique suffix to the node name.")
	return cmd
}

func (a *app) runTalker(cmd *cobra.Command, args []string) error {
	hz, _ := cmd.Flags().GetFloat64("rate")
	count, _ := cmd.Flags().GetInt("count")
	name, _ := cmd.Flags().GetString("name")
	if anonymous, _ := cmd.Flags().GetBool("anonymous"); anonymous {
		name = anonymousName(name)
	}
	rate, err := ros.NewRate(hz)
	if err != nil {
		return err
	}

	node, err := ros.NewNode(name, args, a.nodeOptions()...)
	if err != nil {
		return err
	}
	defer node.Shutdown()

	topic := a.v.GetString("topic")
	pub, err := node.NewPublisher(topic, ardupilot_msgs.MsgRc)
	if err != nil {
		return errors.Wrapf(err, "advertise %s", topic)
	}
	defer pub.Shutdown()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	return publishRc(ctx, pub, &rate, count)
}

// publishRc publishes at rate until ctx is done or count messages went
// out. A count of zero means no limit.
func publishRc(ctx context.Context, pub ros.Publisher, rate *ros.Rate, count int) error {
	for seq := uint32(1); count == 0 || int(seq) <= count; seq++ {
		msg := &ardupilot_msgs.Rc{
			Header:          std_msgs.Header{Seq: seq, Stamp: ros.Now(), FrameID: "0"},
			IsConnected:     true,
			ReceiverRssi:    255,
			Channels:        sitlChannels,
			ActiveOverrides: make([]bool, len(sitlChannels)),
		}
		if err := pub.Publish(msg); err != nil {
			return errors.Wrap(err, "publish")
		}
		if err := rate.SleepContext(ctx); err != nil {
			if errors.Cause(err) == context.Canceled {
				return nil
			}
			return err
		}
	}
	return nil
}
