package negotiate

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/atlasgrid/pgtiles/internal/tile"
)

var ErrNoAcceptableEncoding = errors.New("no acceptable encoding for payload")

// Negotiate returns content the client can accept. It is byte-identical
// pass-through whenever the payload's encoding is already acceptable.
// Non-recompressible formats only ever fall back to identity; MVT and
// JSON are re-encoded into the client's best-ranked encoding.
func Negotiate(c tile.Content, accept Accept) (tile.Content, error) {
	if c.Encoding == tile.EncodingIdentity || accept.Contains(c.Encoding) {
		return c, nil
	}

	if !c.Format.Recompressible() && c.Format != tile.FormatUnknown {
		if !accept.Contains(tile.EncodingIdentity) {
			return tile.Content{}, ErrNoAcceptableEncoding
		}
		raw, err := Decode(c.Data, c.Encoding)
		if err != nil {
			return tile.Content{}, fmt.Errorf("decode %s payload: %w", c.Encoding, err)
		}
		return tile.Content{Format: c.Format, Encoding: tile.EncodingIdentity, Data: raw}, nil
	}

	if best, ok := accept.Best(); ok {
		raw, err := Decode(c.Data, c.Encoding)
		if err != nil {
			return tile.Content{}, fmt.Errorf("decode %s payload: %w", c.Encoding, err)
		}
		out, err := Encode(raw, best)
		if err != nil {
			return tile.Content{}, fmt.Errorf("encode as %s: %w", best, err)
		}
		return tile.Content{Format: c.Format, Encoding: best, Data: out}, nil
	}

	if !accept.Contains(tile.EncodingIdentity) {
		return tile.Content{}, ErrNoAcceptableEncoding
	}
	raw, err := Decode(c.Data, c.Encoding)
	if err != nil {
		return tile.Content{}, fmt.Errorf("decode %s payload: %w", c.Encoding, err)
	}
	return tile.Content{Format: c.Format, Encoding: tile.EncodingIdentity, Data: raw}, nil
}

// Decode decompresses a whole buffer per enc. Identity is a no-op.
func Decode(b []byte, enc tile.Encoding) ([]byte, error) {
	switch enc {
	case tile.EncodingIdentity:
		return b, nil
	case tile.EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case tile.EncodingZlib:
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case tile.EncodingBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(b)))
	case tile.EncodingZstd:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(b, nil)
	default:
		return nil, fmt.Errorf("decode: unsupported encoding %d", enc)
	}
}

// Encode compresses a whole buffer per enc. Identity is a no-op.
func Encode(b []byte, enc tile.Encoding) ([]byte, error) {
	switch enc {
	case tile.EncodingIdentity:
		return b, nil
	case tile.EncodingGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case tile.EncodingZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case tile.EncodingBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case tile.EncodingZstd:
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		out := e.EncodeAll(b, nil)
		if err := e.Close(); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("encode: unsupported encoding %d", enc)
	}
}
