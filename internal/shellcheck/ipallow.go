package shellcheck

import (
	"fmt"
	"net"
	"strings"
)

// CheckIPAllowlist reports whether ip is permitted by the allowlist.
// Entries are literal IPs or CIDR ranges. An empty list means no
// restriction is configured and everything is allowed.
func CheckIPAllowlist(ip string, allowed []string) (bool, string) {
	if len(allowed) == 0 {
		return true, ""
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false, fmt.Sprintf("invalid ip address %q", ip)
	}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if ipnet.Contains(parsed) {
				return true, ""
			}
			continue
		}
		if other := net.ParseIP(entry); other != nil && other.Equal(parsed) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("ip %s not in allowlist", ip)
}
