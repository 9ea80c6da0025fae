// Package model defines the Value triple and key ordering shared across the
// sequencer, sorted runs, and merge engine.
package model

// MaxParamID is the sentinel used as the upper bound on param id when
// constructing a comparison key for a checkpoint boundary search.
const MaxParamID uint64 = ^uint64(0)

// PayloadKind distinguishes how a Value's payload should be interpreted.
type PayloadKind uint8

const (
	// PayloadOffset marks a payload as a page-relative offset into the
	// downstream page.
	PayloadOffset PayloadKind = iota
	// PayloadInline marks a payload as an inline double value.
	PayloadInline
)

// Key is the ordering key of a Value: lexicographic on (Timestamp, ParamID).
type Key struct {
	Timestamp uint64
	ParamID   uint64
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool {
	if k.Timestamp != other.Timestamp {
		return k.Timestamp < other.Timestamp
	}
	return k.ParamID < other.ParamID
}

// Compare returns -1, 0, or 1 as k is less than, equal to, or greater than other.
func (k Key) Compare(other Key) int {
	switch {
	case k.Timestamp < other.Timestamp:
		return -1
	case k.Timestamp > other.Timestamp:
		return 1
	case k.ParamID < other.ParamID:
		return -1
	case k.ParamID > other.ParamID:
		return 1
	default:
		return 0
	}
}

// Value is an immutable (timestamp, param_id, payload) triple. Payload is
// never part of the ordering key.
type Value struct {
	Key     Key
	Kind    PayloadKind
	Offset  uint64  // valid when Kind == PayloadOffset
	Inline  float64 // valid when Kind == PayloadInline
}

// NewOffsetValue builds a Value whose payload is a page-relative offset.
func NewOffsetValue(ts, paramID, offset uint64) Value {
	return Value{Key: Key{Timestamp: ts, ParamID: paramID}, Kind: PayloadOffset, Offset: offset}
}

// NewInlineValue builds a Value whose payload is an inline double.
func NewInlineValue(ts, paramID uint64, v float64) Value {
	return Value{Key: Key{Timestamp: ts, ParamID: paramID}, Kind: PayloadInline, Inline: v}
}

// Less reports whether v sorts strictly before other by key alone.
func (v Value) Less(other Value) bool {
	return v.Key.Less(other.Key)
}
