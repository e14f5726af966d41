package db

import "strings"

// EscapeQueryTerm escapes FT.SEARCH special characters in a user-supplied
// term so it is matched literally.
func EscapeQueryTerm(term string) string {
	var b strings.Builder
	b.Grow(len(term) * 2)
	for _, r := range term {
		if strings.ContainsRune(",.<>{}[]\"':;!@#$%^&*()-+=~|/\\ ", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeTagValue escapes a value for use inside a TAG filter clause.
func EscapeTagValue(v string) string {
	return EscapeQueryTerm(v)
}
