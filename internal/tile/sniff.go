package tile

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var (
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicGIF  = []byte{0x47, 0x49, 0x46, 0x38}
	magicGzip = []byte{0x1F, 0x8B}
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	riff      = []byte("RIFF")
	webp      = []byte("WEBP")
)

// Classify inspects raw tile bytes and reports their format and wire
// encoding. It never fails: anything ambiguous or too short comes back
// as (FormatUnknown, EncodingIdentity).
//
// Compression magics win over format magics. When one matches, the
// payload is decompressed and format detection runs on the inner
// bytes. MVT carries no magic of its own and can only be confirmed by
// caller context, so compressed vector tiles classify as FormatUnknown
// with the right encoding.
func Classify(b []byte) (Format, Encoding) {
	if len(b) == 0 {
		return FormatUnknown, EncodingIdentity
	}
	if enc := sniffEncoding(b); enc != EncodingIdentity {
		inner, err := inflate(b, enc)
		if err != nil {
			return FormatUnknown, enc
		}
		return sniffFormat(inner), enc
	}
	return sniffFormat(b), EncodingIdentity
}

func sniffEncoding(b []byte) Encoding {
	switch {
	case bytes.HasPrefix(b, magicGzip):
		return EncodingGzip
	case len(b) >= 2 && b[0] == 0x78 && (b[1] == 0x01 || b[1] == 0x9C || b[1] == 0xDA):
		return EncodingZlib
	case bytes.HasPrefix(b, magicZstd):
		return EncodingZstd
	default:
		return EncodingIdentity
	}
}

func sniffFormat(b []byte) Format {
	switch {
	case bytes.HasPrefix(b, magicPNG):
		return FormatPng
	case bytes.HasPrefix(b, magicJPEG):
		return FormatJpeg
	case bytes.HasPrefix(b, magicGIF):
		return FormatGif
	case len(b) >= 12 && bytes.Equal(b[:4], riff) && bytes.Equal(b[8:12], webp):
		return FormatWebp
	}
	if t := bytes.TrimLeft(b, " \t\r\n"); len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		return FormatJSON
	}
	return FormatUnknown
}

// inflate fully decompresses b per enc. Tile buffers are materialized
// and size-bounded upstream, so whole-buffer decompression is fine.
func inflate(b []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case EncodingZlib:
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case EncodingZstd:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(b, nil)
	default:
		return b, nil
	}
}
