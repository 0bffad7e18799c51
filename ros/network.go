package ros

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
)

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// determineHost picks the address other nodes use to reach this one and
// reports whether it is only reachable locally.
func determineHost() (string, bool) {
	e, err := loadEnvironment()
	if err == nil {
		if e.Hostname != "" {
			return e.Hostname, e.Hostname == "localhost"
		}
		if e.IP != "" {
			return e.IP, isLoopbackHost(e.IP)
		}
	}

	if osHostname, err := os.Hostname(); err == nil && osHostname != "localhost" {
		return osHostname, false
	}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String(), false
			}
		}
	}
	return "127.0.0.1", true
}

func listenRandomPort(address string, trialLimit int) (net.Listener, error) {
	var lastErr error
	for trial := 0; trial < trialLimit; trial++ {
		port := 1024 + rand.Intn(65535-1024)
		listener, err := net.Listen("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
		if err == nil {
			return listener, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "no free port on %s after %d trials", address, trialLimit)
}
