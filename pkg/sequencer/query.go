package sequencer

import "github.com/akumuli/sequencer/pkg/merge"

// ParamPredicate reports whether paramID matches a search query.
type ParamPredicate func(paramID uint64) bool

// Query describes a search: values strictly between LowerBound and
// UpperBound (both exclusive, per spec §6 / §9) whose param id satisfies
// ParamPred, emitted in Direction order.
type Query struct {
	LowerBound uint64
	UpperBound uint64
	ParamPred  ParamPredicate
	Direction  merge.Direction
}

// MatchAll is a ParamPredicate that accepts every param id.
func MatchAll(uint64) bool { return true }
