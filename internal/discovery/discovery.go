// Package discovery advertises the board on the local network over mDNS
// and finds other boards.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// DefaultService is the mDNS service type boards register under.
const DefaultService = "_airboard._tcp"

// Config holds the discovery settings.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

// DefaultConfig returns discovery enabled under the hostname.
func DefaultConfig() Config {
	return Config{Enabled: true, Service: DefaultService}
}

// Peer is a board found on the network.
type Peer struct {
	Instance string   `json:"instance"`
	Host     string   `json:"host"`
	Addr     string   `json:"addr"`
	Port     int      `json:"port"`
	Info     []string `json:"info,omitempty"`
}

// URL returns the base HTTP address of the peer.
func (p Peer) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(p.Addr, fmt.Sprint(p.Port)))
}

// Advertiser keeps a board registered until Shutdown.
type Advertiser struct {
	server *mdns.Server
	once   sync.Once
}

// Advertise registers the board's HTTP port. info ends up in the TXT record.
func Advertise(cfg Config, port int, info []string) (*Advertiser, error) {
	logger := slog.Default().With("component", "discovery")

	service, err := newService(cfg, port, "", nil, info)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logger.Info("advertising board", "instance", service.Instance, "service", service.Service, "port", port)
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	var err error
	a.once.Do(func() {
		err = a.server.Shutdown()
	})
	return err
}

func newService(cfg Config, port int, host string, ips []net.IP, info []string) (*mdns.MDNSService, error) {
	instance := cfg.Instance
	if instance == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = h
	}
	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	if len(info) == 0 {
		info = []string{"airboard"}
	}

	s, err := mdns.NewMDNSService(instance, service, "", host, port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return s, nil
}

// Browse looks for boards for the given duration.
func Browse(service string, timeout time.Duration) ([]Peer, error) {
	if service == "" {
		service = DefaultService
	}

	entries := make(chan *mdns.ServiceEntry, 8)
	var peers []Peer
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for e := range entries {
			p, ok := peerFromEntry(e, service)
			if !ok || seen[p.Addr+p.Instance] {
				continue
			}
			seen[p.Addr+p.Instance] = true
			peers = append(peers, p)
		}
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return peers, fmt.Errorf("mDNS query failed: %w", err)
	}
	return peers, nil
}

func peerFromEntry(e *mdns.ServiceEntry, service string) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	instance := e.Name
	if i := strings.Index(instance, "."+service); i > 0 {
		instance = instance[:i]
	}
	return Peer{
		Instance: strings.ReplaceAll(instance, `\ `, " "),
		Host:     strings.TrimSuffix(e.Host, "."),
		Addr:     e.AddrV4.String(),
		Port:     e.Port,
		Info:     e.InfoFields,
	}, true
}

// LocalIPv4 returns the first IPv4 address of an interface that is up and
// not a loopback, or 127.0.0.1.
func LocalIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}
