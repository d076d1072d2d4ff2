package tile

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var pngTile = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("IHDR and the rest")...)

func TestClassify_EmptyAndShortInput(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {0x89}, {0x1F}, {0x78}} {
		f, e := Classify(b)
		if f != FormatUnknown || e != EncodingIdentity {
			t.Fatalf("Classify(% X) = (%v, %v), want (unknown, identity)", b, f, e)
		}
	}
}

func TestClassify_RasterMagics(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"png", pngTile, FormatPng},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, FormatJpeg},
		{"gif", []byte("GIF89a trailer"), FormatGif},
		{"webp", append([]byte("RIFF\x24\x00\x00\x00WEBP"), []byte("VP8 ")...), FormatWebp},
	}
	for _, c := range cases {
		f, e := Classify(c.data)
		if f != c.want || e != EncodingIdentity {
			t.Fatalf("%s: Classify = (%v, %v), want (%v, identity)", c.name, f, e, c.want)
		}
	}
}

func TestClassify_PngWithArbitrarySuffix(t *testing.T) {
	data := append(append([]byte{}, pngTile...), 0x00, 0xFF, 0x13, 0x37)
	f, e := Classify(data)
	if f != FormatPng || e != EncodingIdentity {
		t.Fatalf("Classify = (%v, %v), want (png, identity)", f, e)
	}
}

func TestClassify_JSON(t *testing.T) {
	for _, s := range []string{`{"a":1}`, "  \n\t[1,2,3]", "\r\n{}"} {
		f, e := Classify([]byte(s))
		if f != FormatJSON || e != EncodingIdentity {
			t.Fatalf("Classify(%q) = (%v, %v), want (json, identity)", s, f, e)
		}
	}
}

func TestClassify_GzipWrappedJSON(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"type":"FeatureCollection"}`)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f, e := Classify(buf.Bytes())
	if f != FormatJSON || e != EncodingGzip {
		t.Fatalf("Classify = (%v, %v), want (json, gzip)", f, e)
	}
}

func TestClassify_ZlibWrappedVectorTile(t *testing.T) {
	// A zlib-wrapped protobuf payload has no inner magic: the encoding
	// is detected, the format stays unknown.
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte{0x1A, 0x0E, 0x78, 0x02}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f, e := Classify(buf.Bytes())
	if f != FormatUnknown || e != EncodingZlib {
		t.Fatalf("Classify = (%v, %v), want (unknown, deflate)", f, e)
	}
}

func TestClassify_ZstdWrappedPng(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	data := enc.EncodeAll(pngTile, nil)
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f, e := Classify(data)
	if f != FormatPng || e != EncodingZstd {
		t.Fatalf("Classify = (%v, %v), want (png, zstd)", f, e)
	}
}

func TestClassify_TruncatedGzipKeepsEncoding(t *testing.T) {
	f, e := Classify([]byte{0x1F, 0x8B, 0x08})
	if f != FormatUnknown || e != EncodingGzip {
		t.Fatalf("Classify = (%v, %v), want (unknown, gzip)", f, e)
	}
}

func TestClassify_ZlibSecondByteVariants(t *testing.T) {
	// Only 78 01 / 78 9C / 78 DA count as zlib headers.
	for _, b2 := range []byte{0x01, 0x9C, 0xDA} {
		_, e := Classify([]byte{0x78, b2, 0x00})
		if e != EncodingZlib {
			t.Fatalf("78 %02X: encoding = %v, want deflate", b2, e)
		}
	}
	f, e := Classify([]byte{0x78, 0x5E, 0x00})
	if e != EncodingIdentity || f != FormatUnknown {
		t.Fatalf("78 5E: got (%v, %v), want (unknown, identity)", f, e)
	}
}

func TestClassify_NeverPanicsOnArbitraryBytes(t *testing.T) {
	inputs := [][]byte{
		bytes.Repeat([]byte{0x00}, 64),
		bytes.Repeat([]byte{0xFF}, 64),
		[]byte("RIFF1234WEB"),            // one byte short of a webp header
		{0x28, 0xB5, 0x2F, 0xFD, 0x00},   // zstd magic, garbage frame
		{0x78, 0x9C},                     // zlib magic, no body
		append([]byte("GIF8"), 0x00),     // gif magic prefix only
	}
	for _, b := range inputs {
		f, e := Classify(b)
		_ = f
		_ = e
	}
}
