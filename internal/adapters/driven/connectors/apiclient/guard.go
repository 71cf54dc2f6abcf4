package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

const maxRedirects = 5

// Guard rejects outbound URLs and connections that could reach internal
// infrastructure or leave the configured platform domain.
type Guard struct {
	allowHTTP    bool
	allowPrivate bool
}

// GuardConfig holds configuration for the URL guard.
type GuardConfig struct {
	AllowHTTP    bool // Permit plain http, for local test servers only
	AllowPrivate bool // Permit loopback and private addresses, for local test servers only
}

// NewGuard creates a URL guard.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		allowHTTP:    cfg.AllowHTTP,
		allowPrivate: cfg.AllowPrivate,
	}
}

// CheckBase validates a configured base URL.
func (g *Guard) CheckBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, violation("invalid url %q", raw)
	}
	if u.Scheme != "https" && !(g.allowHTTP && u.Scheme == "http") {
		return nil, violation("scheme %q not allowed for %s", u.Scheme, u.Host)
	}
	if u.User != nil {
		return nil, violation("credentials embedded in url for %s", u.Host)
	}
	if g.allowPrivate {
		return u, nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return nil, violation("host %s not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil && !isPublicIP(ip) {
		return nil, violation("address %s not allowed", host)
	}
	return u, nil
}

// CheckEndpoint validates an API endpoint built from the base URL.
func (g *Guard) CheckEndpoint(base, target string) error {
	b, err := g.CheckBase(base)
	if err != nil {
		return err
	}
	t, err := g.CheckBase(target)
	if err != nil {
		return err
	}
	if !strings.EqualFold(b.Host, t.Host) {
		return violation("endpoint host %s differs from base host %s", t.Host, b.Host)
	}
	return nil
}

// CheckDownload validates a file URL: it must pass the base checks and share
// the registrable domain of the base URL.
func (g *Guard) CheckDownload(base, target string) error {
	b, err := g.CheckBase(base)
	if err != nil {
		return err
	}
	t, err := g.CheckBase(target)
	if err != nil {
		return err
	}
	if !sameSite(b.Hostname(), t.Hostname()) {
		return violation("download host %s outside base domain %s", t.Hostname(), b.Hostname())
	}
	return nil
}

// DialContext dials with a socket control hook that refuses non-public
// addresses, so a public name resolving to a private address is still blocked.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   g.control,
	}
	return d.DialContext(ctx, network, addr)
}

func (g *Guard) control(_, address string, _ syscall.RawConn) error {
	if g.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return violation("invalid dial address %q", address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return violation("connection to %s blocked", host)
	}
	return nil
}

// CheckRedirect re-validates every redirect hop against the base URL of the
// request that started the chain.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after too many redirects")
	}
	base, ok := baseFromContext(req.Context())
	if !ok {
		_, err := g.CheckBase(req.URL.String())
		return err
	}
	return g.CheckDownload(base, req.URL.String())
}

type baseKey struct{}

func withBase(ctx context.Context, base string) context.Context {
	return context.WithValue(ctx, baseKey{}, base)
}

func baseFromContext(ctx context.Context) (string, bool) {
	base, ok := ctx.Value(baseKey{}).(string)
	return base, ok && base != ""
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isPublicIP(ip net.IP) bool {
	switch {
	case ip.IsLoopback(), ip.IsPrivate(), ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}

func sameSite(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	if net.ParseIP(a) != nil || net.ParseIP(b) != nil {
		return false
	}
	da, err := publicsuffix.EffectiveTLDPlusOne(a)
	if err != nil {
		return false
	}
	db, err := publicsuffix.EffectiveTLDPlusOne(b)
	if err != nil {
		return false
	}
	return da == db
}

func violation(format string, args ...any) error {
	return domain.NewProviderError(domain.ErrorKindSecurity, "url guard", fmt.Errorf(format, args...))
}
