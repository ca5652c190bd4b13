package api

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/openstickers/nfc-flasher/internal/logging"
)

// mDNS service type announced on the local network so companion apps can
// find a running flasher without configuration.
const mdnsService = "_nfc-flasher._tcp"

// Announce registers the agent with mDNS. The caller shuts the returned
// server down on exit.
func Announce(port int) (*zeroconf.Server, error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "nfc-flasher"
	}
	// Random suffix keeps two agents on one host from colliding
	instance := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	server, err := zeroconf.Register(instance, mdnsService, "local.", port,
		[]string{"version=" + Version}, nil)
	if err != nil {
		return nil, fmt.Errorf("mDNS registration failed: %w", err)
	}

	logging.Info(logging.CatSystem, "mDNS service announced", map[string]any{
		"instance": instance,
		"service":  mdnsService,
		"port":     port,
	})
	return server, nil
}
