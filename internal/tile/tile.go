// Package tile defines the tile content model: payload formats,
// wire encodings, and the classification of raw tile bytes.
package tile

import "errors"

var (
	ErrIncompatibleEncoding = errors.New("format cannot carry a compression encoding")
	ErrUnknownFormat        = errors.New("unknown tile format")
)

// Format is the payload format of a tile, independent of any wire
// compression wrapped around it.
type Format int

const (
	FormatUnknown Format = iota
	FormatMvt
	FormatPng
	FormatJpeg
	FormatWebp
	FormatGif
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatMvt:
		return "mvt"
	case FormatPng:
		return "png"
	case FormatJpeg:
		return "jpeg"
	case FormatWebp:
		return "webp"
	case FormatGif:
		return "gif"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ContentType returns the canonical MIME type, or "" for FormatUnknown.
func (f Format) ContentType() string {
	switch f {
	case FormatMvt:
		return "application/x-protobuf"
	case FormatPng:
		return "image/png"
	case FormatJpeg:
		return "image/jpeg"
	case FormatWebp:
		return "image/webp"
	case FormatGif:
		return "image/gif"
	case FormatJSON:
		return "application/json"
	default:
		return ""
	}
}

// Recompressible reports whether the format tolerates wire compression.
// Raster formats are already internally compressed; wrapping them again
// wastes cycles and is rejected by Validate.
func (f Format) Recompressible() bool {
	switch f {
	case FormatMvt, FormatJSON:
		return true
	default:
		return false
	}
}

// Encoding is the wire compression applied to tile bytes.
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingZlib
	EncodingBrotli
	EncodingZstd
)

func (e Encoding) String() string {
	if e == EncodingIdentity {
		return "identity"
	}
	return e.Token()
}

// Token returns the Content-Encoding header token, or "" for identity
// (the header is omitted for uncompressed payloads).
func (e Encoding) Token() string {
	switch e {
	case EncodingGzip:
		return "gzip"
	case EncodingZlib:
		return "deflate"
	case EncodingBrotli:
		return "br"
	case EncodingZstd:
		return "zstd"
	default:
		return ""
	}
}

// Content is a fully materialized tile payload together with its
// classification. Decoding Data per Encoding must yield bytes whose
// prefix matches Format's magic (FormatUnknown exempt).
type Content struct {
	Format   Format
	Encoding Encoding
	Data     []byte
}

// Validate rejects format/encoding pairs that must not go on the wire:
// a non-recompressible raster format carrying a compression encoding.
func Validate(f Format, e Encoding) error {
	if e != EncodingIdentity && f != FormatUnknown && !f.Recompressible() {
		return ErrIncompatibleEncoding
	}
	return nil
}

// Headers resolves the response header pair for a tile. The second
// value is empty when no Content-Encoding header should be written.
func Headers(f Format, e Encoding) (contentType, contentEncoding string, err error) {
	if f == FormatUnknown {
		return "", "", ErrUnknownFormat
	}
	if err := Validate(f, e); err != nil {
		return "", "", err
	}
	return f.ContentType(), e.Token(), nil
}
