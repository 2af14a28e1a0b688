package shellcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckIPAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		allowed []string
		want    bool
	}{
		{"empty list allows all", "203.0.113.9", nil, true},
		{"literal match", "10.0.0.5", []string{"10.0.0.5"}, true},
		{"literal mismatch", "10.0.0.6", []string{"10.0.0.5"}, false},
		{"cidr match", "192.168.1.40", []string{"192.168.1.0/24"}, true},
		{"cidr mismatch", "192.168.2.40", []string{"192.168.1.0/24"}, false},
		{"mixed entries", "172.16.5.1", []string{"10.0.0.5", "172.16.0.0/12"}, true},
		{"ipv6 literal", "::1", []string{"::1"}, true},
		{"invalid ip rejected", "not-an-ip", []string{"10.0.0.5"}, false},
		{"bad cidr entry skipped", "10.0.0.5", []string{"999.0.0.0/8", "10.0.0.5"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := CheckIPAllowlist(tt.ip, tt.allowed)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.NotEmpty(t, reason)
			}
		})
	}
}
