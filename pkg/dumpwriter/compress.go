package dumpwriter

import (
	"fmt"
	"io"
	"strings"

	kscompress "github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec wraps a Writer's underlying sink stream with a compressor. Each
// chunk file gets its own independent stream, so parallel-friendly codecs
// (pgzip) buy real wall-clock even though every Worker already runs
// concurrently with the others.
type Codec int

const (
	CodecNone Codec = iota
	CodecGzip
	CodecPgzip
	CodecLZ4
	CodecXZ
)

func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CodecNone, nil
	case "gzip", "gz":
		return CodecGzip, nil
	case "pgzip":
		return CodecPgzip, nil
	case "lz4":
		return CodecLZ4, nil
	case "xz":
		return CodecXZ, nil
	}
	return 0, &UnsupportedCodecError{Codec: s}
}

type UnsupportedCodecError struct{ Codec string }

func (e *UnsupportedCodecError) Error() string { return "dumpwriter: unsupported compression codec " + e.Codec }

func (c Codec) Extension() string {
	switch c {
	case CodecGzip, CodecPgzip:
		return ".gz"
	case CodecLZ4:
		return ".lz4"
	case CodecXZ:
		return ".xz"
	default:
		return ""
	}
}

// newCompressor returns a WriteCloser that compresses into w. Closing it
// flushes and closes the compression stream only, not w itself.
func newCompressor(c Codec, w io.Writer, level int) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecGzip:
		if level == 0 {
			level = kscompress.DefaultCompression
		}
		return kscompress.NewWriterLevel(w, level)
	case CodecPgzip:
		if level == 0 {
			level = pgzip.DefaultCompression
		}
		zw, err := pgzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, err
		}
		_ = zw.SetConcurrency(1<<20, 4)
		return zw, nil
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if level > 0 {
			_ = zw.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(level)))
		}
		return zw, nil
	case CodecXZ:
		return xz.NewWriter(w)
	}
	return nil, fmt.Errorf("dumpwriter: unknown codec %d", c)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
