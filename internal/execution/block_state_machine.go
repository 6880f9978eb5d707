package execution

import "log"

// BlockStatus is the per-run state of one block
type BlockStatus string

const (
	BlockStatusPending   BlockStatus = "pending"
	BlockStatusRunning   BlockStatus = "running"
	BlockStatusRetrying  BlockStatus = "retrying"
	BlockStatusCompleted BlockStatus = "completed"
	BlockStatusFailed    BlockStatus = "failed"
	BlockStatusSkipped   BlockStatus = "skipped"
)

// validTransitions lists every allowed move; anything else is rejected.
// Skipped is only reachable from pending: blocks stranded on a cycle never start.
var validTransitions = map[BlockStatus]map[BlockStatus]bool{
	BlockStatusPending: {
		BlockStatusRunning: true,
		BlockStatusSkipped: true,
	},
	BlockStatusRunning: {
		BlockStatusCompleted: true,
		BlockStatusFailed:    true,
		BlockStatusRetrying:  true,
	},
	BlockStatusRetrying: {
		BlockStatusRunning:   true,
		BlockStatusCompleted: true,
		BlockStatusFailed:    true,
	},
}

// TransitionBlockStatus returns desired if the move is allowed, otherwise current
func TransitionBlockStatus(current, desired BlockStatus) BlockStatus {
	if !validTransitions[current][desired] {
		log.Printf("⚠️ [STATE] Invalid block transition: %s → %s (rejected)", current, desired)
		return current
	}
	return desired
}

