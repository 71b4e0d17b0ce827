package client

import (
	"log/slog"
	"time"

	"github.com/hashicorp/mdns"
)

const reverbServiceType = "_reverb._tcp"

// DiscoveredServer is a Reverb server found on the local network.
type DiscoveredServer struct {
	ServiceName string
	Host        string
	Port        int
	TXTRecords  []string
}

// DiscoverServer finds the first Reverb server advertised over mDNS on the
// local network. Useful on LAN deployments where the host is not configured
// up front.
func DiscoverServer(timeout time.Duration) (*DiscoveredServer, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)

	go func() {
		defer close(entriesCh)
		mdns.Lookup(reverbServiceType, entriesCh)
	}()

	select {
	case entry := <-entriesCh:
		if entry == nil {
			return nil, newError(KindConnection, "no %s service found", reverbServiceType)
		}

		var host string
		if entry.AddrV4 != nil {
			host = entry.AddrV4.String()
		} else if entry.AddrV6 != nil {
			host = "[" + entry.AddrV6.String() + "]"
		} else {
			return nil, newError(KindConnection, "discovered %s has no usable address", entry.Name)
		}

		server := &DiscoveredServer{
			ServiceName: entry.Name,
			Host:        host,
			Port:        entry.Port,
			TXTRecords:  entry.InfoFields,
		}

		slog.Info("Discovered Reverb server",
			"service_name", server.ServiceName,
			"host", server.Host,
			"port", server.Port,
		)

		return server, nil

	case <-time.After(timeout):
		return nil, newError(KindTimeout, "mDNS discovery timeout for %s", reverbServiceType)
	}
}
