package crawler

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/metrics"
)

// Resolver is the subset of net.Resolver the verifier needs. Injected so
// tests can assert lookup counts without touching the network.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Verifier checks whether a remote IP genuinely belongs to the crawler a
// signature describes.
type Verifier struct {
	resolver Resolver
	timeout  time.Duration
	logger   *zap.Logger
}

// NewVerifier builds a Verifier. A nil resolver falls back to the system
// resolver and a zero timeout to 2s.
func NewVerifier(resolver Resolver, timeout time.Duration, logger *zap.Logger) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{resolver: resolver, timeout: timeout, logger: logger}
}

// Verify reports whether remoteIP passes the signature's verification.
// Resolution failures are logged and count as "not verified"; they never
// propagate, keeping the classifier fail-closed toward lower privilege.
func (v *Verifier) Verify(ctx context.Context, remoteIP string, sig Signature) bool {
	switch sig.Kind {
	case KindIPList:
		ok := v.verifyIP(remoteIP, sig.IPs)
		metrics.ObserveDNSLookup("ip_list", outcomeLabel(ok))
		return ok
	case KindDNS:
		ok := v.verifyDNS(ctx, remoteIP, sig.Domains)
		metrics.ObserveDNSLookup("dns", outcomeLabel(ok))
		return ok
	default:
		// Unverifiable signatures are short-circuited by the classifier.
		return false
	}
}

func (v *Verifier) verifyIP(remoteIP string, allowed []string) bool {
	for _, ip := range allowed {
		if ip == remoteIP {
			return true
		}
	}
	return false
}

// verifyDNS reverse-resolves remoteIP, requires the PTR hostname to fall
// under one of the signature's domain suffixes, and confirms the forward
// A records contain the original IP.
func (v *Verifier) verifyDNS(ctx context.Context, remoteIP string, domains []string) bool {
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return false
	}
	hosts, err := v.lookupAddrRetry(ctx, remoteIP)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			// NXDOMAIN: the IP simply has no PTR record.
			return false
		}
		v.logger.Warn("reverse DNS lookup failed",
			zap.String("ip", remoteIP), zap.Error(err))
		return false
	}
	for _, host := range hosts {
		if !subdomainOfAny(host, domains) {
			continue
		}
		lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
		addrs, err := v.resolver.LookupHost(lookupCtx, strings.TrimSuffix(host, "."))
		cancel()
		if err != nil {
			v.logger.Warn("forward DNS lookup failed",
				zap.String("host", host), zap.Error(err))
			continue
		}
		for _, addr := range addrs {
			// Textual forms differ between resolvers (IPv6 zero
			// compression, leading zeros); compare parsed addresses.
			if resolved := net.ParseIP(addr); resolved != nil && resolved.Equal(ip) {
				return true
			}
		}
	}
	return false
}

// lookupAddrRetry performs the PTR lookup with a bounded timeout and
// exactly one retry on transient resolver failure. NXDOMAIN is returned
// immediately.
func (v *Verifier) lookupAddrRetry(ctx context.Context, remoteIP string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
		hosts, err := v.resolver.LookupAddr(lookupCtx, remoteIP)
		cancel()
		if err == nil {
			return hosts, nil
		}
		lastErr = err
		if !transientDNSError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func transientDNSError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return false
		}
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// subdomainOfAny reports whether host equals or falls under one of the
// domain suffixes. PTR results carry a trailing dot.
func subdomainOfAny(host string, domains []string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, domain := range domains {
		d := strings.ToLower(strings.TrimSuffix(domain, "."))
		if h == d || strings.HasSuffix(h, "."+d) {
			return true
		}
	}
	return false
}

func outcomeLabel(ok bool) string {
	if ok {
		return "verified"
	}
	return "unverified"
}
