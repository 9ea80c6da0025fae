package cursor

import "github.com/akumuli/sequencer/pkg/model"

// Item is one emission from a ChannelCursor: either a value, a terminal
// error, or a completion marker (Done true).
type Item struct {
	Value model.Value
	Page  PageRef
	Err   model.Status
	Done  bool
}

// ChannelCursor is a Cursor backed by a buffered Go channel. It is the
// concrete sink used by cmd/sequencerd and by tests: Put/SetError/Complete
// all send on the channel, blocking (suspending the caller, per the Cursor
// contract) once the buffer is full.
type ChannelCursor struct {
	items chan Item
}

// NewChannelCursor creates a ChannelCursor with the given buffer depth.
// A depth of 0 yields a synchronous, unbuffered hand-off between producer
// and consumer.
func NewChannelCursor(depth int) *ChannelCursor {
	return &ChannelCursor{items: make(chan Item, depth)}
}

// Items returns the receive side of the channel for a consumer goroutine
// to range over.
func (c *ChannelCursor) Items() <-chan Item {
	return c.items
}

// Put implements Cursor.
func (c *ChannelCursor) Put(caller Caller, value model.Value, page PageRef) {
	c.items <- Item{Value: value, Page: page}
}

// SetError implements Cursor.
func (c *ChannelCursor) SetError(caller Caller, status model.Status) {
	c.items <- Item{Err: status}
	close(c.items)
}

// Complete implements Cursor.
func (c *ChannelCursor) Complete(caller Caller) {
	c.items <- Item{Done: true}
	close(c.items)
}
