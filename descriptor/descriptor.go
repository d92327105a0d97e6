// Package descriptor parses and validates redis-cli style connection strings
// such as `redis-cli -h cache.example.com -p 6380 -a secret`.
package descriptor

import (
	"net"
	"strconv"
	"strings"

	"github.com/cacheoracle/cacheoracle/errs"
)

const (
	MaxLength   = 500
	Prefix      = "redis-cli"
	DefaultHost = "localhost"
	DefaultPort = 6379
)

const unsafeChars = ";&|<>$`"

// blockedHosts are never reachable from the server side, whatever the user asks for.
// Literal addresses are also blocked by class, see internalHost.
var blockedHosts = map[string]bool{
	"127.0.0.1":       true,
	"localhost":       true,
	"0.0.0.0":         true,
	"169.254.169.254": true,
}

// internalHost reports whether host names this machine or a link-local
// service, including the octal, hex and shortened IPv4 forms that resolvers
// still accept.
func internalHost(host string) bool {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if blockedHosts[h] || strings.HasSuffix(h, ".localhost") {
		return true
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if i := strings.IndexByte(h, '%'); i >= 0 {
		h = h[:i]
	}
	ip := net.ParseIP(h)
	if ip == nil {
		ip = legacyIPv4(h)
	}
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// legacyIPv4 parses the inet_aton notation: one to four dot-separated parts,
// each decimal, octal (leading 0) or hex (0x), the last part filling the
// remaining bytes. It returns nil for anything else.
func legacyIPv4(s string) net.IP {
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return nil
	}
	var addr uint64
	for i, part := range parts {
		if part == "" || strings.ContainsAny(part, "_") {
			return nil
		}
		v, err := strconv.ParseUint(part, 0, 32)
		if err != nil {
			return nil
		}
		if i < len(parts)-1 {
			if v > 0xff {
				return nil
			}
			addr |= v << (8 * uint(3-i))
			continue
		}
		if v >= 1<<(8*uint(4-i)) {
			return nil
		}
		addr |= v
	}
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// Descriptor is a validated connection target. Raw holds the sanitized text,
// which is what gets persisted for reuse.
type Descriptor struct {
	Host     string
	Port     int
	Password string
	Raw      string
}

// Addr returns host:port suitable for dialing.
func (d *Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String never includes the password.
func (d *Descriptor) String() string {
	return d.Addr()
}

type Options struct {
	// AllowHosts lifts the blocklist for the listed hosts, e.g. for local development.
	AllowHosts []string
}

func (o Options) allowed(host string) bool {
	for _, h := range o.AllowHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

// Sanitize removes every character that could chain or redirect a shell
// command. Applying it twice yields the same result as applying it once.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) {
			return -1
		}
		return r
	}, s)
}

func Parse(text string) (*Descriptor, error) {
	return ParseWithOptions(text, Options{})
}

// ParseWithOptions validates text and extracts host (-h), port (-p) and
// password (-a). No network access happens here.
func ParseWithOptions(text string, opts Options) (*Descriptor, error) {
	if len(text) > MaxLength {
		return nil, errs.New(errs.ValidationError, "connection string is too long")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.New(errs.ValidationError, "connection string is required")
	}
	fields := strings.Fields(text)
	if fields[0] != Prefix {
		return nil, errs.New(errs.FormatError, "invalid connection string format")
	}

	sanitized := Sanitize(text)
	tokens := strings.Fields(sanitized)
	host := flagValue(tokens, "-h", DefaultHost)
	portStr := flagValue(tokens, "-p", "")
	password := flagValue(tokens, "-a", "")

	if host == "" || strings.Contains(host, "..") {
		return nil, errs.New(errs.ValidationError, "invalid host")
	}
	port := DefaultPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return nil, errs.New(errs.ValidationError, "invalid port number")
		}
		port = p
	}
	if internalHost(host) && !opts.allowed(host) {
		return nil, errs.Newf(errs.SecurityError, "host %s is not allowed", host)
	}
	return &Descriptor{
		Host:     host,
		Port:     port,
		Password: password,
		Raw:      sanitized,
	}, nil
}

// flagValue returns the token following the first occurrence of flag.
func flagValue(tokens []string, flag, def string) string {
	for i, tok := range tokens {
		if tok != flag {
			continue
		}
		if i+1 < len(tokens) {
			return tokens[i+1]
		}
		return def
	}
	return def
}
