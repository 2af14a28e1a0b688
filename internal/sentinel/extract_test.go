package sentinel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomains(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"single url", "fetch https://api.example.com/v1/users", []string{"api.example.com"}},
		{"dedupes hosts", "https://a.io/x and https://a.io/y", []string{"a.io"}},
		{"multiple hosts", "http://a.io and https://b.dev/path", []string{"a.io", "b.dev"}},
		{"trailing punctuation", "see https://docs.example.com.", []string{"docs.example.com"}},
		{"no urls", "nothing to see here", nil},
		{"bare domains are not urls", "ping example.com", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDomains(tt.content))
		})
	}
}

func TestExtractNetworkTargets(t *testing.T) {
	targets := ExtractNetworkTargets("curl http://10.0.0.5:8080/health && ping backup.example.com")
	assert.Contains(t, targets, "10.0.0.5")
	assert.Contains(t, targets, "backup.example.com")
}

func TestExtractNetworkTargetsSkipsInvalidIPs(t *testing.T) {
	targets := ExtractNetworkTargets("version 999.999.999.999 released")
	assert.NotContains(t, targets, "999.999.999.999")
}

func TestExtractNetworkTargetsSkipsCodeFilenames(t *testing.T) {
	targets := ExtractNetworkTargets("edit main.go and app.py then visit internal.corp")
	assert.NotContains(t, targets, "main.go")
	assert.NotContains(t, targets, "app.py")
	assert.Contains(t, targets, "internal.corp")
}
