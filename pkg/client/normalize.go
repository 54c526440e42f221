package client

import (
	"strings"
)

// MinifyQuery strips comment lines and collapses whitespace in a GraphQL
// document, so equivalently formatted queries produce identical request
// bodies and therefore identical cache keys. It must run before key
// derivation.
func MinifyQuery(document string) string {
	lines := strings.Split(document, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	// Collapse all remaining whitespace runs to single spaces.
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}
