// Package keys derives deterministic tile cache keys.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Key builds the cache key for one tile request. The query JSON is
// already a deterministic function of the request parameters, so its
// hash is too. Layout: <source>:<z>/<x>/<y>:q=<hex64>.
func Key(source string, z, x, y int, query []byte) string {
	sum := xxhash.Sum64(query)
	return fmt.Sprintf("%s:%d/%d/%d:q=%016x", sanitizeSource(strings.TrimSpace(source)), z, x, y, sum)
}

// SourcePrefix is the common prefix of every key for one source, used
// for wholesale invalidation.
func SourcePrefix(source string) string {
	return sanitizeSource(strings.TrimSpace(source)) + ":"
}

func sanitizeSource(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '.' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
