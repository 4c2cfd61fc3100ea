// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the compression applied to an archive stream.
type Compression uint8

const (
	// CompressionNone writes a plain tar stream.
	CompressionNone Compression = iota

	// CompressionZstd writes a zstd frame at the default level. Good
	// ratios for the source trees and build outputs overrun usually
	// captures.
	CompressionZstd

	// CompressionLZ4 writes an LZ4 frame. Faster than zstd with a
	// lower ratio.
	CompressionLZ4
)

// String returns the human-readable name of a compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// CompressionForPath selects the compression implied by an archive
// file name. A trailing EncryptedSuffix is ignored.
func CompressionForPath(path string) (Compression, error) {
	lower := strings.TrimSuffix(strings.ToLower(path), EncryptedSuffix)
	switch {
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return CompressionZstd, nil
	case strings.HasSuffix(lower, ".tar.lz4"):
		return CompressionLZ4, nil
	case strings.HasSuffix(lower, ".tar"):
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unrecognized archive extension in %q (want .tar, .tar.zst, .tzst, or .tar.lz4, optionally followed by .age)", path)
	}
}

// compressor wraps w with the encoder for c. Closing the returned
// writer flushes the encoder but does not close w.
func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

// decompressor wraps r with the decoder for c.
func decompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
