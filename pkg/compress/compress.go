// Package compress provides the reversible payload transforms applied by the
// entry codec. Compression is always best-effort: callers fall back to the
// raw payload when a transform fails or does not shrink the data.
package compress

import "fmt"

const (
	Zstd   = "zstd"
	Gzip   = "gzip"
	Brotli = "br"
)

// Compressor is a reversible byte transform.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// ByName returns the compressor registered under the given algorithm name.
func ByName(name string) (Compressor, error) {
	switch name {
	case Zstd:
		return NewZstd()
	case Gzip:
		return NewGzip(), nil
	case Brotli:
		return NewBrotli(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}
