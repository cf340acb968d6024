// Package discovery advertises the bridge's HTTP API on the local network
// over mDNS/DNS-SD.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the DNS-SD service type of the HTTP API.
	ServiceType = "_zigbee-bridge._tcp"
	Domain      = "local."
)

// Info describes the advertised instance.
type Info struct {
	Listen         string // web.listen address, host:port
	Version        string
	EUI64          string // local device, may be empty
	APIKeyRequired bool
}

// Advertiser registers at most one service instance at a time.
type Advertiser struct {
	logger *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewAdvertiser(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger.With("component", "mdns")}
}

// Start advertises info, replacing any previous registration.
func (a *Advertiser) Start(info Info) error {
	host, port, err := splitListen(info.Listen)
	if err != nil {
		return err
	}
	if isLoopback(host) {
		return fmt.Errorf("listen address %s is loopback-only, not advertising", info.Listen)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	name := instanceName(info.EUI64)
	server, err := zeroconf.Register(name, ServiceType, Domain, port, txtRecords(info), nil)
	if err != nil {
		return fmt.Errorf("register %s: %w", ServiceType, err)
	}
	a.server = server
	a.logger.Info("advertising", "instance", name, "service", ServiceType, "port", port)
	return nil
}

// Stop withdraws the registration. Safe to call when not started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func txtRecords(info Info) []string {
	auth := "none"
	if info.APIKeyRequired {
		auth = "key"
	}
	txt := []string{
		"api=/api",
		"ws=/ws",
		"auth=" + auth,
	}
	if info.Version != "" {
		txt = append(txt, "version="+info.Version)
	}
	if info.EUI64 != "" {
		txt = append(txt, "eui64="+info.EUI64)
	}
	return txt
}

// instanceName is "zigbee-bridge" suffixed with the last six hex digits of
// the local EUI64 when known.
func instanceName(eui64 string) string {
	if len(eui64) < 6 {
		return "zigbee-bridge"
	}
	return "zigbee-bridge-" + strings.ToLower(eui64[len(eui64)-6:])
}

func splitListen(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("listen address %q: bad port", addr)
	}
	return host, port, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
