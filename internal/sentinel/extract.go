package sentinel

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlRe    = regexp.MustCompile(`https?://[^\s<>"']+`)
	ipv4Re   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainRe = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
)

// Source-code file extensions that look like domains to the generic token
// matcher ("main.go", "app.py"); excluding them keeps network-target
// extraction from flagging filenames.
var codeFileExtensions = map[string]struct{}{
	"go": {}, "py": {}, "js": {}, "ts": {}, "jsx": {}, "tsx": {},
	"java": {}, "c": {}, "h": {}, "cpp": {}, "hpp": {}, "cs": {},
	"rs": {}, "rb": {}, "php": {}, "sh": {}, "bash": {},
	"md": {}, "txt": {}, "log": {},
	"yaml": {}, "yml": {}, "json": {}, "toml": {}, "xml": {}, "ini": {},
	"html": {}, "css": {}, "sql": {},
}

// ExtractDomains returns the hosts of every URL found in the content.
func ExtractDomains(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range urlRe.FindAllString(content, -1) {
		u, err := url.Parse(strings.TrimRight(raw, ".,;:!?)"))
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if _, dup := seen[host]; !dup {
			seen[host] = struct{}{}
			out = append(out, host)
		}
	}
	return out
}

// ExtractNetworkTargets returns every network-shaped token in the
// content: URL hosts, IPv4 literals, and generic domain-shaped tokens
// that are not obviously source-code filenames.
func ExtractNetworkTargets(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t string) {
		t = strings.ToLower(t)
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	for _, host := range ExtractDomains(content) {
		add(host)
	}

	for _, ip := range ipv4Re.FindAllString(content, -1) {
		if net.ParseIP(ip) != nil {
			add(ip)
		}
	}

	for _, tok := range domainRe.FindAllString(content, -1) {
		if isCodeFilename(tok) {
			continue
		}
		add(tok)
	}

	return out
}

func isCodeFilename(tok string) bool {
	idx := strings.LastIndexByte(tok, '.')
	if idx < 0 || idx == len(tok)-1 {
		return false
	}
	_, ok := codeFileExtensions[strings.ToLower(tok[idx+1:])]
	return ok
}
