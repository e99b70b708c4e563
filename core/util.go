package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanCode trims and upper-cases identifiers such as course codes ("cs101 " -> "CS101").
func CleanCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
