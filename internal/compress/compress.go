// Package compress turns backup content into the gzip payloads stored in the archive tier.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	// Extension is appended to archive keys.
	Extension = ".gz"

	// ContentType is set on archive objects.
	ContentType = "application/gzip"
)

// Compressor produces gzip streams at a fixed level.
type Compressor struct {
	level int
}

// New returns a Compressor. Levels outside 1-9 fall back to gzip's default.
func New(level int) *Compressor {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Compressor{level: level}
}

// Compress returns the gzip encoding of data. Empty input yields a valid empty stream.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gw.Write(data); err != nil {
		_ = gw.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	return Decompress(data)
}

// Decompress decodes a gzip stream.
func Decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// ArchiveKey returns the archive key for an original key.
func ArchiveKey(key string) string {
	return key + Extension
}
