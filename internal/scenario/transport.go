package scenario

import (
	"strings"
	"time"

	"github.com/edwinhayes/rcprobe/internal/launch"
	"github.com/pkg/errors"
)

const (
	DefaultStartTimeout    = 2 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second

	// BridgeProcess names the ros1_bridge process of the default graphs.
	BridgeProcess = "ros1_bridge"
)

// TransportKind selects how the autopilot reaches the micro-ROS agent.
type TransportKind int

const (
	Serial TransportKind = iota
	UDP
)

// AllTransports lists every variant in run order.
var AllTransports = []TransportKind{Serial, UDP}

func (k TransportKind) String() string {
	switch k {
	case Serial:
		return "serial"
	case UDP:
		return "udp"
	}
	return "unknown"
}

func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial":
		return Serial, nil
	case "udp":
		return UDP, nil
	}
	return 0, errors.Errorf("unknown transport %q (want serial or udp)", s)
}

// RequiredProcesses returns the processes that must report started, in
// the order they are waited on.
func RequiredProcesses(kind TransportKind) []string {
	if kind == Serial {
		return []string{"virtual_ports", "micro_ros_agent", "mavproxy", "sitl"}
	}
	return []string{"micro_ros_agent", "mavproxy", "sitl"}
}

// DefaultProcesses is the SITL graph used when the configuration does
// not declare one. ARDUPILOT_DEFAULTS is expanded from the environment.
// The agent publishes over DDS, so the graph ends with ros1_bridge
// forwarding ROS 2 topics to the ROS master the listener registers with.
// The bridge is not waited on; it counts as started once spawned.
func DefaultProcesses(kind TransportKind) []launch.ProcessSpec {
	const (
		agentCmd = "ros2 run micro_ros_agent micro_ros_agent"
		sitlCmd  = "arducopter --model quad --speedup 1 --slave 0 --instance 0 " +
			"--synthetic-clock --home -35.363261,149.165230,584,353 --defaults ${ARDUPILOT_DEFAULTS}"
	)
	bridge := launch.ProcessSpec{
		Name:    BridgeProcess,
		Command: "ros2 run ros1_bridge dynamic_bridge --bridge-all-2to1-topics",
	}
	mavproxy := launch.ProcessSpec{
		Name:    "mavproxy",
		Command: "mavproxy.py --out 127.0.0.1:14550 --out 127.0.0.1:14551 --master tcp:127.0.0.1:5760 --sitl 127.0.0.1:5501",
	}
	if kind == Serial {
		return []launch.ProcessSpec{
			{
				Name:         "virtual_ports",
				Command:      "socat -d -d pty,raw,echo=0,link=./dev/ttyROS0 pty,raw,echo=0,link=./dev/ttyROS1",
				ReadyPattern: "starting data transfer loop",
			},
			{
				Name:    "micro_ros_agent",
				Command: agentCmd + " serial --baudrate 115200 --dev ./dev/ttyROS0",
			},
			mavproxy,
			{
				Name:    "sitl",
				Command: sitlCmd + " --serial1 uart:./dev/ttyROS1",
			},
			bridge,
		}
	}
	return []launch.ProcessSpec{
		{
			Name:    "micro_ros_agent",
			Command: agentCmd + " udp4 --port 2019",
		},
		mavproxy,
		{
			Name:    "sitl",
			Command: sitlCmd,
		},
		bridge,
	}
}
