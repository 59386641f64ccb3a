// Package strings holds small string helpers for request parsing.
package strings

import (
	"strings"
)

// SplitLower splits every value on commas and returns the trimmed,
// lowercased, non-empty parts in first-seen order without duplicates.
//
//	SplitLower([]string{"Approved, pending", "approved", " "})
//	// []string{"approved", "pending"}
func SplitLower(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
