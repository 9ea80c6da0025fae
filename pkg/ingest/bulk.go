package ingest

import (
	"github.com/klauspost/compress/snappy"
)

// BulkCompressionThreshold is the minimum bulk string length, in bytes,
// at which a completed bulk payload is snappy-compressed before being
// counted and forwarded downstream. Below the threshold the compression
// overhead is not worth paying.
const BulkCompressionThreshold = 256

// compressBulk snappy-compresses data when it is large enough for
// compression to plausibly pay for itself, falling back to the original
// bytes when the encoded form is not actually smaller. It reports
// whether the returned payload is compressed.
func compressBulk(data []byte) (payload []byte, compressed bool) {
	if len(data) < BulkCompressionThreshold {
		return data, false
	}
	encoded := snappy.Encode(nil, data)
	if len(encoded) >= len(data) {
		return data, false
	}
	return encoded, true
}
