package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/snappy"
)

func TestCompressBulkLeavesSmallPayloadsAlone(t *testing.T) {
	data := []byte("short payload")
	payload, compressed := compressBulk(data)
	if compressed {
		t.Fatalf("expected no compression below the threshold")
	}
	if !bytes.Equal(payload, data) {
		t.Fatalf("payload mutated for an uncompressed input")
	}
}

func TestCompressBulkCompressesRepetitiveLargePayloads(t *testing.T) {
	data := []byte(strings.Repeat("aaaaaaaaaa", BulkCompressionThreshold))
	payload, compressed := compressBulk(data)
	if !compressed {
		t.Fatalf("expected a highly repetitive payload above the threshold to compress")
	}
	if len(payload) >= len(data) {
		t.Fatalf("compressed payload (%d) not smaller than original (%d)", len(payload), len(data))
	}

	decoded, err := snappy.Decode(nil, payload)
	if err != nil {
		t.Fatalf("snappy.Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("decoded payload does not round-trip to the original")
	}
}
