package toolbuffer

import (
	"regexp"
	"strconv"
	"strings"
)

// idRefRe matches an explicit "#<n>" execution reference.
var idRefRe = regexp.MustCompile(`#(\d+)\b`)

// intentRes are message shapes that ask about earlier tool output, in
// English and Portuguese.
var intentRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(tool|command) output\b`),
	regexp.MustCompile(`(?i)\bwhat did (the|that|it|my) .{0,40}\b(find|return|show|say|output|report)\b`),
	regexp.MustCompile(`(?i)\b(show|give) me the (output|result|results)\b`),
	regexp.MustCompile(`(?i)\b(results?|output) (of|from) (the|that|my)\b`),
	regexp.MustCompile(`(?i)\b(saída|saida|resultado) (do|da|de)\b`),
	regexp.MustCompile(`(?i)\bo que (o|a|esse|essa) .{0,40}\b(encontrou|retornou|mostrou|achou)\b`),
	regexp.MustCompile(`(?i)\bme (mostre|mostra) (o resultado|a saída|a saida)\b`),
}

// toolWords are tool names users commonly refer to by name. A match is a
// hint, not a filter; callers fall back to the latest execution when the
// named tool is not buffered.
var toolWords = []string{
	"nmap", "curl", "wget", "grep", "ping", "dig", "traceroute",
	"git", "docker", "kubectl", "sqlmap", "nikto", "gobuster",
}

// DetectInjectionIntent inspects a user message for signs it refers to
// earlier tool output. It returns whether intent was detected, the
// execution ID when the message names one with "#<n>", and the tool name
// when the message mentions a known tool.
func DetectInjectionIntent(message string) (bool, int64, string) {
	var id int64
	if m := idRefRe.FindStringSubmatch(message); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			id = n
		}
	}

	tool := ""
	lower := strings.ToLower(message)
	for _, w := range toolWords {
		if containsWord(lower, w) {
			tool = w
			break
		}
	}

	if id != 0 || tool != "" {
		return true, id, tool
	}
	for _, re := range intentRes {
		if re.MatchString(message) {
			return true, 0, ""
		}
	}
	return false, 0, ""
}

func containsWord(s, w string) bool {
	idx := strings.Index(s, w)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(s[idx-1])
		after := idx+len(w) == len(s) || !isWordByte(s[idx+len(w)])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], w)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
