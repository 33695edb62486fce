package policy

import "regexp"

var internalDetailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(goroutine|panic|runtime error)\b.*`),
	regexp.MustCompile(`[\w./\\-]+\.go:\d+`),
	regexp.MustCompile(`(?i)\b(pgx|postgres(ql)?|sqlstate|dial tcp|connection refused)\b[^.]*`),
	regexp.MustCompile(`(?i)\b(api[_ -]?key|bearer|token)\b\S*`),
}

// SanitizeReason strips internal error details (stack traces, backend
// identifiers, credentials) from a handler reason before it reaches a reply.
func SanitizeReason(reason string) (string, bool) {
	out := reason
	changed := false
	for _, re := range internalDetailPatterns {
		next := re.ReplaceAllString(out, "[internal]")
		changed = changed || next != out
		out = next
	}
	return out, changed
}
