// Package policy implements the declarative capability policies (network,
// storage, exec/sandbox, terminal, time, consensus) a challenge module is
// instantiated with, and their normalized, enforcement-ready forms.
package policy

import (
	"net/netip"
	"strings"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

// HTTPPolicy configures the allowed HTTP surface.
type HTTPPolicy struct {
	AllowedHosts    []string `yaml:"allowed_hosts"`
	AllowedSchemes  []string `yaml:"allowed_schemes"`
	AllowedPorts    []uint16 `yaml:"allowed_ports"`
}

// DNSPolicy configures the allowed DNS resolution surface.
type DNSPolicy struct {
	Enabled            bool     `yaml:"enabled"`
	AllowedHosts       []string `yaml:"allowed_hosts"`
	AllowedRecordTypes []string `yaml:"allowed_record_types"` // subset of A, AAAA, CNAME, TXT
	MaxLookups         uint32   `yaml:"max_lookups"`
	CacheTTLSecs       uint32   `yaml:"cache_ttl_secs"`
	BlockPrivateRanges bool     `yaml:"block_private_ranges"`
}

// NetworkLimits bounds request/response size and rate.
type NetworkLimits struct {
	MaxRequestBytes  uint64 `yaml:"max_request_bytes"`
	MaxResponseBytes uint64 `yaml:"max_response_bytes"`
	MaxHeaderBytes   uint64 `yaml:"max_header_bytes"`
	TimeoutMs        uint64 `yaml:"timeout_ms"`
	MaxRequests      uint32 `yaml:"max_requests"`
	MaxRedirects     uint32 `yaml:"max_redirects"`
}

// NetworkAudit controls audit-logging detail.
type NetworkAudit struct {
	Enabled    bool     `yaml:"enabled"`
	LogHeaders bool     `yaml:"log_headers"`
	LogBodies  bool     `yaml:"log_bodies"`
	Tags       []string `yaml:"tags"`
}

// NetworkPolicy is the raw, as-configured network capability policy.
type NetworkPolicy struct {
	AllowInternet   bool           `yaml:"allow_internet"`
	HTTP            HTTPPolicy     `yaml:"http"`
	AllowedIPRanges []string       `yaml:"allowed_ip_ranges"`
	DNS             DNSPolicy      `yaml:"dns"`
	Limits          NetworkLimits  `yaml:"limits"`
	Audit           NetworkAudit   `yaml:"audit"`
}

// hostPattern is the normalized form of a single configured host entry.
// Plain hostnames match exactly; entries prefixed with "." or "*." match
// the given host and any subdomain of it.
type hostPattern struct {
	suffix      string // lowercased, without leading '.' or '*.'
	matchExact  bool   // true for a bare "host" entry
	matchSuffix bool   // true for ".host" or "*.host" entries
}

func normalizeHostPattern(raw string) hostPattern {
	h := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(h, "*."):
		return hostPattern{suffix: h[2:], matchSuffix: true}
	case strings.HasPrefix(h, "."):
		return hostPattern{suffix: h[1:], matchSuffix: true}
	default:
		return hostPattern{suffix: h, matchExact: true}
	}
}

func (p hostPattern) matches(host string) bool {
	host = strings.ToLower(host)
	if p.matchExact && host == p.suffix {
		return true
	}
	if p.matchSuffix {
		if host == p.suffix {
			return true
		}
		return strings.HasSuffix(host, "."+p.suffix)
	}
	return false
}

// NormalizedNetworkPolicy is the enforcement-ready form of a NetworkPolicy.
// Enforcement code must only ever consult this form, never the raw policy.
type NormalizedNetworkPolicy struct {
	raw NetworkPolicy

	hostPatterns   []hostPattern
	schemes        map[string]bool
	ports          map[uint16]bool
	ipRanges       []netip.Prefix
	dnsHostPatterns []hostPattern
	dnsRecordTypes  map[string]bool
}

// Normalize validates and normalizes a NetworkPolicy, rejecting
// configuration that could never be satisfied at enforcement time (e.g.
// port 0, unparsable CIDRs).
func Normalize(p NetworkPolicy) (*NormalizedNetworkPolicy, error) {
	const op = "policy.Normalize"
	n := &NormalizedNetworkPolicy{raw: p}

	for _, h := range p.HTTP.AllowedHosts {
		n.hostPatterns = append(n.hostPatterns, normalizeHostPattern(h))
	}
	n.schemes = map[string]bool{}
	for _, s := range p.HTTP.AllowedSchemes {
		n.schemes[strings.ToLower(s)] = true
	}
	n.ports = map[uint16]bool{}
	for _, port := range p.HTTP.AllowedPorts {
		if port == 0 {
			return nil, errs.E(op, errs.Validation, errors.New("port 0 is not a valid allowed port"))
		}
		n.ports[port] = true
	}
	for _, cidr := range p.AllowedIPRanges {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, errs.E(op, errs.Validation, errors.Wrapf(err, "invalid CIDR %q", cidr))
		}
		n.ipRanges = append(n.ipRanges, prefix)
	}
	for _, h := range p.DNS.AllowedHosts {
		n.dnsHostPatterns = append(n.dnsHostPatterns, normalizeHostPattern(h))
	}
	n.dnsRecordTypes = map[string]bool{}
	for _, rt := range p.DNS.AllowedRecordTypes {
		rt = strings.ToUpper(rt)
		switch rt {
		case "A", "AAAA", "CNAME", "TXT":
			n.dnsRecordTypes[rt] = true
		default:
			return nil, errs.E(op, errs.Validation, errors.Errorf("unsupported DNS record type %q", rt))
		}
	}
	return n, nil
}

// IsHostAllowed reports whether host matches a configured HTTP host pattern,
// or whether it is an IP literal matching a configured allowed range.
func (n *NormalizedNetworkPolicy) IsHostAllowed(host string) bool {
	if ip, err := netip.ParseAddr(host); err == nil {
		return n.IsIPAllowed(ip)
	}
	for _, p := range n.hostPatterns {
		if p.matches(host) {
			return true
		}
	}
	return false
}

// IsIPAllowed reports whether ip falls inside a configured CIDR range.
func (n *NormalizedNetworkPolicy) IsIPAllowed(ip netip.Addr) bool {
	for _, prefix := range n.ipRanges {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

// IsSchemeAllowed reports whether scheme (e.g. "https") is permitted.
func (n *NormalizedNetworkPolicy) IsSchemeAllowed(scheme string) bool {
	return n.schemes[strings.ToLower(scheme)]
}

// IsPortAllowed reports whether port is permitted. A port of 0 is never allowed.
func (n *NormalizedNetworkPolicy) IsPortAllowed(port uint16) bool {
	if port == 0 {
		return false
	}
	if len(n.ports) == 0 {
		// no explicit allow-list means any non-zero port is acceptable,
		// matching the "absent means unrestricted" convention used
		// elsewhere in the policy schema.
		return true
	}
	return n.ports[port]
}

// IsDNSLookupAllowed reports whether a DNS lookup of host for recordType is permitted.
func (n *NormalizedNetworkPolicy) IsDNSLookupAllowed(host, recordType string) bool {
	if !n.raw.DNS.Enabled {
		return false
	}
	if len(n.dnsRecordTypes) > 0 && !n.dnsRecordTypes[strings.ToUpper(recordType)] {
		return false
	}
	if len(n.dnsHostPatterns) == 0 {
		return true
	}
	for _, p := range n.dnsHostPatterns {
		if p.matches(host) {
			return true
		}
	}
	return false
}

// IsHTTPRequestAllowed runs the full enforcement order from spec.md §4.2:
// policy disabled → scheme not allowed → host not allowed → port not allowed.
func (n *NormalizedNetworkPolicy) IsHTTPRequestAllowed(scheme, host string, port uint16) error {
	const op = "policy.IsHTTPRequestAllowed"
	if !n.raw.AllowInternet {
		return errs.E(op, errs.PolicyViolation, errors.New("network disabled"))
	}
	if !n.IsSchemeAllowed(scheme) {
		return errs.E(op, errs.PolicyViolation, errors.Errorf("scheme %q not allowed", scheme))
	}
	if !n.IsHostAllowed(host) {
		return errs.E(op, errs.PolicyViolation, errors.Errorf("host %q not allowed", host))
	}
	if !n.IsPortAllowed(port) {
		return errs.E(op, errs.PolicyViolation, errors.Errorf("port %d not allowed", port))
	}
	return nil
}

// Raw returns the original, unvalidated policy.
func (n *NormalizedNetworkPolicy) Raw() NetworkPolicy { return n.raw }
