package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

type BrotliCompressor struct {
	level int
}

func NewBrotli() *BrotliCompressor {
	return &BrotliCompressor{level: brotli.DefaultCompression}
}

func (b *BrotliCompressor) Name() string {
	return Brotli
}

func (b *BrotliCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, b.level)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BrotliCompressor) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompression failed: %w", err)
	}
	return out, nil
}
