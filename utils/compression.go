package utils

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Snapshot payloads and cached summaries are stored gzip-compressed.
// Payloads below this size skip compression, the header overhead is not
// worth it.
const compressionFloor = 500

// CompressData gzips data. Inputs below the floor pass through unchanged
// with compressed=false.
func CompressData(data []byte) ([]byte, bool, error) {
	if len(data) < compressionFloor {
		return data, false, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, false, fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), true, nil
}

// DecompressData reverses CompressData.
func DecompressData(data []byte, compressed bool) ([]byte, error) {
	if !compressed || len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from gzip reader: %w", err)
	}
	return out, nil
}
