package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Key("tiles.roads", 10, 511, 340, []byte(`{"class":"motorway"}`))
	k2 := Key("tiles.roads", 10, 511, 340, []byte(`{"class":"motorway"}`))
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestDifference_QueryChangesKey(t *testing.T) {
	k1 := Key("tiles.roads", 10, 511, 340, []byte(`{"class":"motorway"}`))
	k2 := Key("tiles.roads", 10, 511, 340, []byte(`{"class":"primary"}`))
	if k1 == k2 {
		t.Fatal("different query JSON must produce different keys")
	}
}

func TestKey_ShapeAndHashSuffix(t *testing.T) {
	k := Key("tiles.roads", 3, 1, 2, []byte(`{}`))
	if !strings.HasPrefix(k, "tiles.roads:3/1/2:q=") {
		t.Fatalf("unexpected key layout: %s", k)
	}
	if !regexp.MustCompile(`:q=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("missing hex64 query hash suffix: %s", k)
	}
}

func TestSanitize_UnicodeAndWhitespace(t *testing.T) {
	k := Key("  göteborg tiles ", 1, 0, 0, nil)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if strings.ContainsAny(k, " \t\n") {
		t.Fatalf("whitespace leaked into key: %q", k)
	}
}

func TestSourcePrefix_CoversAllTileKeys(t *testing.T) {
	p := SourcePrefix("tiles.roads")
	for _, z := range []int{0, 5, 14} {
		if !strings.HasPrefix(Key("tiles.roads", z, 1, 2, nil), p) {
			t.Fatalf("key at z=%d does not share the source prefix %q", z, p)
		}
	}
	if strings.HasPrefix(Key("tiles.roads2", 1, 1, 1, nil), p) {
		t.Fatal("prefix must not match a different source")
	}
}
