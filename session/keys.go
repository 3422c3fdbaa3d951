package session

import "strings"

const (
	// DefaultPrefix namespaces session keys.
	DefaultPrefix = "SESSION"
	// DefaultBlacklistPrefix namespaces revoked access token ids.
	DefaultBlacklistPrefix = "bl:access"
)

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards so a
// subject id can never widen a prefix scan.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
