package domain

import "regexp"

var utrPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,12}$`)

// ValidUTR reports whether s is an acceptable bank reference number:
// alphanumeric, at most 12 characters, not starting with 0.
func ValidUTR(s string) bool {
	return utrPattern.MatchString(s) && s[0] != '0'
}
