package discovery

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// ServiceType is the DNS-SD service type of the controller.
	ServiceType = "_idiotic._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	txtPath    = "path"
	txtSite    = "site"
	txtVersion = "version"
)

// Info describes what the controller advertises.
type Info struct {
	Instance string
	Port     int
	Path     string
	SiteID   string
	Version  string
}

// Service is a controller found by Browse.
type Service struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Path      string
	SiteID    string
	Version   string
}

// URL returns the device endpoint as a ws:// URL on the first address,
// falling back to the host name.
func (s Service) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	}
	host = strings.TrimSuffix(host, ".")
	path := s.Path
	if path == "" {
		path = "/embedded"
	}
	return fmt.Sprintf("ws://%s:%d%s", host, s.Port, path)
}

// encodeTXT renders info as sorted key=value strings.
func encodeTXT(info Info) []string {
	records := map[string]string{
		txtPath:    info.Path,
		txtSite:    info.SiteID,
		txtVersion: info.Version,
	}
	out := make([]string, 0, len(records))
	for k, v := range records {
		if v != "" {
			out = append(out, k+"="+v)
		}
	}
	sort.Strings(out)
	return out
}

// decodeTXT parses key=value strings. Entries without "=" are ignored.
func decodeTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, rec := range txt {
		k, v, ok := strings.Cut(rec, "=")
		if !ok || k == "" {
			continue
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// instanceName trims name to a valid DNS label length.
func instanceName(name string) string {
	if name == "" {
		name = "idiotic"
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
