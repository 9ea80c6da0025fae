package sequencer

// LockToken is returned by Writer.Add, Writer.Close, and held across a call
// to Sequencer.Merge. A token that Owns the progress lock must eventually
// be passed to Merge; releasing it (Release) is what lets a subsequent
// checkpoint or search proceed.
type LockToken struct {
	seq  *Sequencer
	owns bool
}

// Owns reports whether this token holds the Sequencer's progress lock.
func (t LockToken) Owns() bool {
	return t.owns
}

// Release unlocks the progress lock if this token owns it. Release is a
// no-op on an empty guard token.
func (t LockToken) Release() {
	if t.owns {
		t.seq.progress.Unlock()
	}
}
