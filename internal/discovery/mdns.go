package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrNotFound is returned by FindFirst when no controller answers.
var ErrNotFound = errors.New("no controller found")

// Logger defines the logging interface used by the discovery package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Config selects where and how long the service is advertised.
type Config struct {
	// Interface restricts advertisement to one interface; empty means all.
	Interface string

	// TTL of the published records; zero keeps the library default.
	TTL time.Duration
}

type registerFunc func(instance, service, domain string, port int, text []string,
	ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// Advertiser publishes the controller's device endpoint over mDNS.
type Advertiser struct {
	config   Config
	logger   Logger
	register registerFunc

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is published until Start.
func NewAdvertiser(cfg Config, logger Logger) *Advertiser {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Advertiser{config: cfg, logger: logger, register: zeroconf.Register}
}

// Start publishes info, replacing any previous advertisement.
func (a *Advertiser) Start(info Info) error {
	if info.Port <= 0 {
		return fmt.Errorf("advertising %s: invalid port %d", ServiceType, info.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	name := instanceName(info.Instance)
	server, err := a.register(name, ServiceType, Domain, info.Port, encodeTXT(info), interfaces(a.config.Interface), opts...)
	if err != nil {
		return fmt.Errorf("registering %s service: %w", ServiceType, err)
	}
	a.server = server
	a.logger.Info("mDNS advertisement started", "instance", name, "service", ServiceType, "port", info.Port)
	return nil
}

// Stop withdraws the advertisement. Stopping twice is a no-op.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Advertiser) stopLocked() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Browse looks for controllers until ctx is done, sending each instance
// once. The returned channel is closed when browsing ends.
func Browse(ctx context.Context, iface string) (<-chan Service, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(iface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	out := make(chan Service)
	go func() {
		defer close(out)
		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry == nil || seen[entry.Instance] {
					continue
				}
				seen[entry.Instance] = true
				select {
				case out <- serviceFromEntry(entry):
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if ok && entry != nil {
					delete(seen, entry.Instance)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...) //nolint:errcheck // ends with ctx
	}()

	return out, nil
}

// FindFirst browses until one controller answers or ctx is done.
func FindFirst(ctx context.Context, iface string) (Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found, err := Browse(ctx, iface)
	if err != nil {
		return Service{}, err
	}
	select {
	case svc, ok := <-found:
		if ok {
			return svc, nil
		}
	case <-ctx.Done():
	}
	return Service{}, fmt.Errorf("browsing %s: %w", ServiceType, ErrNotFound)
}

func serviceFromEntry(entry *zeroconf.ServiceEntry) Service {
	txt := decodeTXT(entry.Text)

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return Service{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		Path:      txt[txtPath],
		SiteID:    txt[txtSite],
		Version:   txt[txtVersion],
	}
}

// interfaces resolves name to a single interface, or nil for all.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
