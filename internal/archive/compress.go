package archive

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

func wrapWriter(kind string, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case "", TypeNone:
		return nopWriteCloser{w}, nil
	case TypeGzip:
		return gzip.NewWriter(w), nil
	case TypeZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

// extension names the archive object: tar, tar.gz or tar.zst, plus .enc when
// the stream is encrypted.
func extension(compression string, encrypted bool) string {
	ext := "tar"
	switch compression {
	case TypeGzip:
		ext += ".gz"
	case TypeZstd:
		ext += ".zst"
	}
	if encrypted {
		ext += ".enc"
	}
	return ext
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }
