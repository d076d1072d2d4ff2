// Package negotiate reconciles a tile payload's wire encoding against
// the set of encodings a client will accept.
package negotiate

import (
	"strconv"
	"strings"

	"github.com/atlasgrid/pgtiles/internal/tile"
)

// Accept is a client's acceptable encodings ranked by preference.
// Identity is acceptable by default and only drops out when the header
// excludes it explicitly (identity;q=0 or a *;q=0 catch-all).
type Accept struct {
	ranked           []tile.Encoding
	identityExcluded bool
}

// Contains reports whether enc may be sent as-is.
func (a Accept) Contains(enc tile.Encoding) bool {
	if enc == tile.EncodingIdentity {
		return !a.identityExcluded
	}
	for _, e := range a.ranked {
		if e == enc {
			return true
		}
	}
	return false
}

// Best returns the highest-ranked accepted compression encoding, or
// (identity, false) when the client accepts none.
func (a Accept) Best() (tile.Encoding, bool) {
	if len(a.ranked) == 0 {
		return tile.EncodingIdentity, false
	}
	return a.ranked[0], true
}

func (a Accept) Empty() bool { return len(a.ranked) == 0 }

// ParseAccept parses an Accept-Encoding header value. Unsupported
// tokens are ignored; q-values rank the rest, ties broken by header
// order. An absent or blank header yields an Accept that allows only
// identity.
func ParseAccept(header string) Accept {
	type cand struct {
		enc tile.Encoding
		q   float64
	}
	var cands []cand
	var out Accept

	wildcardQ := -1.0
	for part := range strings.SplitSeq(header, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		name := token
		q := 1.0
		if i := strings.Index(token, ";"); i >= 0 {
			name = strings.TrimSpace(token[:i])
			for p := range strings.SplitSeq(token[i+1:], ";") {
				p = strings.TrimSpace(p)
				if after, ok := strings.CutPrefix(p, "q="); ok {
					if v, err := strconv.ParseFloat(after, 64); err == nil {
						q = v
					}
				}
			}
		}
		switch strings.ToLower(name) {
		case "identity":
			if q <= 0 {
				out.identityExcluded = true
			}
			continue
		case "*":
			wildcardQ = q
			continue
		}
		enc := encodingFromToken(strings.ToLower(name))
		if enc == tile.EncodingIdentity {
			continue // unsupported token
		}
		if q <= 0 {
			continue
		}
		cands = append(cands, cand{enc: enc, q: q})
	}

	if wildcardQ == 0 && !containsIdentityOverride(header) {
		// "*;q=0" excludes anything not explicitly listed, identity included.
		out.identityExcluded = true
	}
	if wildcardQ > 0 {
		// a positive wildcard admits every supported encoding not named
		listed := map[tile.Encoding]bool{}
		for _, c := range cands {
			listed[c.enc] = true
		}
		for _, enc := range []tile.Encoding{tile.EncodingGzip, tile.EncodingZlib, tile.EncodingBrotli, tile.EncodingZstd} {
			if !listed[enc] {
				cands = append(cands, cand{enc: enc, q: wildcardQ})
			}
		}
	}

	// stable sort by q descending, header order as tiebreak
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && (cands[j].q > cands[j-1].q); j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	for _, c := range cands {
		out.ranked = append(out.ranked, c.enc)
	}
	return out
}

// containsIdentityOverride reports whether the header lists identity
// with a positive q, which beats a *;q=0 exclusion.
func containsIdentityOverride(header string) bool {
	for part := range strings.SplitSeq(header, ",") {
		token := strings.TrimSpace(strings.ToLower(part))
		if token == "identity" {
			return true
		}
		if name, rest, ok := strings.Cut(token, ";"); ok && strings.TrimSpace(name) == "identity" {
			if after, ok := strings.CutPrefix(strings.TrimSpace(rest), "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil && v > 0 {
					return true
				}
			}
		}
	}
	return false
}

func encodingFromToken(tok string) tile.Encoding {
	switch tok {
	case "gzip":
		return tile.EncodingGzip
	case "deflate":
		return tile.EncodingZlib
	case "br":
		return tile.EncodingBrotli
	case "zstd":
		return tile.EncodingZstd
	default:
		return tile.EncodingIdentity
	}
}
