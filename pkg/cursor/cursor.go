// Package cursor defines the sink capability that merge and search output
// is emitted through, and the consumer callback the wire protocol parser
// drives. Both contracts are deliberately narrow: the TCP connection that
// eventually resumes a suspended caller, and the persistent page that
// eventually stores a value, are external collaborators (see spec §1).
package cursor

import "github.com/akumuli/sequencer/pkg/model"

// Caller is an opaque continuation handle produced by whoever drives a
// Cursor. It supports coroutine-style resumable consumption: an
// implementation may park it on a channel, a blocking queue, or resume a
// goroutine parked on a condition variable. The contract only requires
// that Put can suspend the caller and later be resumed through it.
type Caller interface{}

// Cursor is the capability set through which the Merge Engine and
// Sequencer.search emit results to a downstream consumer.
type Cursor interface {
	// Put emits one payload, tagged with the page it originated from, to
	// the caller. Put may suspend the caller if the downstream consumer
	// applies backpressure.
	Put(caller Caller, value model.Value, page PageRef)

	// SetError reports a terminal status for the in-flight operation.
	// The producer must not call Put again after SetError.
	SetError(caller Caller, status model.Status)

	// Complete signals that the producer has emitted every value for the
	// in-flight operation and will not call Put or SetError again.
	Complete(caller Caller)
}

// PageRef is the minimal view of a page.Handle a Cursor needs; it is
// defined here (rather than importing pkg/page) so this package's
// dependency surface stays limited to what the contract actually uses.
type PageRef interface {
	ID() string
}

// Consumer is the callback surface the wire protocol parser drives: one
// call per completed record.
type Consumer interface {
	// WriteDouble is invoked once a (param_id, timestamp, value) triple
	// has been fully parsed.
	WriteDouble(paramID, timestamp uint64, value float64) error

	// AddBulkString is invoked once a complete bulk string token has been
	// parsed. The byte slice is only valid for the duration of the call;
	// implementations that need to retain it must copy.
	AddBulkString(data []byte) error
}
