package mdnssd

import (
	"log/slog"
	"net/netip"
	"os"
	"slices"
	"strings"

	"github.com/maeshinshin/mdnssd/dnswire"
)

// SetDebug switches the package logger to debug level.
func SetDebug() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func buildQuery(serviceType string) ([]byte, error) {
	return dnswire.Encode(dnswire.NewQuery(serviceType))
}

// instanceName strips the service type from a PTR target:
// "foo._http._tcp.local" browsed as "_http._tcp.local" is "foo".
func instanceName(target, serviceType string) string {
	suffix := "." + serviceType
	if len(target) > len(suffix) && strings.EqualFold(target[len(target)-len(suffix):], suffix) {
		return target[:len(target)-len(suffix)]
	}
	return target
}

func instanceID(target, serviceType string) string {
	return instanceName(target, serviceType) + "." + serviceType
}

// validAddresses drops the addresses the finder cannot bind.
func validAddresses(addrs []string) []string {
	valid := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if strings.Contains(addr, ":") {
			// TODO: bind IPv6 link-local addresses and query ff02::fb.
			logger.Warn("IPv6 address unsupported", "addr", addr)
			continue
		}
		valid = append(valid, addr)
	}
	return valid
}

// sortIPs sorts dotted quads numerically in place. Strings that are not
// addresses sort last, lexicographically.
func sortIPs(ips []string) []string {
	slices.SortFunc(ips, func(l, r string) int {
		la, lerr := netip.ParseAddr(l)
		ra, rerr := netip.ParseAddr(r)
		switch {
		case lerr == nil && rerr == nil:
			return la.Compare(ra)
		case lerr == nil:
			return -1
		case rerr == nil:
			return 1
		}
		return strings.Compare(l, r)
	})
	return ips
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
