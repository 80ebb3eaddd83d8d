package server

import (
	"strings"
	"unicode"
)

// ParseLine splits a request line into command, path and value.
//
// The command and path are the first two whitespace-delimited tokens. The
// value is everything after the path with a single leading space removed, so
// interior and trailing whitespace of the value survive. Missing fields are
// returned empty.
func ParseLine(line string) (cmd, path, value string) {
	rest := strings.TrimRight(line, "\r\n")

	cmd, rest = nextToken(rest)
	path, rest = nextToken(rest)
	if path == "" {
		return cmd, "", ""
	}
	return cmd, path, strings.TrimPrefix(rest, " ")
}

// nextToken skips leading whitespace and splits off the first token.
// rest starts at the whitespace following the token.
func nextToken(s string) (tok, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
