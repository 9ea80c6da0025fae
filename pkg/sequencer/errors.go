package sequencer

import "errors"

var (
	// ErrInvalidWindowSize is returned (via panic, see NewSequencer) when
	// a Sequencer is constructed with a non-positive window size.
	ErrInvalidWindowSize = errors.New("sequencer: window size must be greater than zero")

	// ErrWriterAlreadyTaken is returned by AcquireWriter when a writer
	// capability has already been handed out for this Sequencer.
	ErrWriterAlreadyTaken = errors.New("sequencer: writer capability already taken")
)
