package store

import "fmt"

// All orchestrator keys live under the vidforge: prefix.

func jobKey(id string) string {
	return fmt.Sprintf("vidforge:job:%s", id)
}

func renderIndexKey(renderID string) string {
	return fmt.Sprintf("vidforge:render:%s", renderID)
}

// PendingListKey is the FIFO of jobs waiting for a worker.
func PendingListKey() string {
	return "vidforge:jobs:pending"
}

// ProcessingListKey holds claimed jobs, including those in the rendering
// phase, until they reach a terminal state.
func ProcessingListKey() string {
	return "vidforge:jobs:processing"
}

// FailedListKey holds failed jobs so retry and clear-failed are O(list).
func FailedListKey() string {
	return "vidforge:jobs:failed"
}

func pausedKey() string {
	return "vidforge:queue:paused"
}

func jobScanPattern() string {
	return "vidforge:job:*"
}
