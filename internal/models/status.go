package models

// IndexState is the lifecycle state of the indexing job.
type IndexState string

const (
	// StateIdle means no indexing run is active.
	StateIdle IndexState = "idle"
	// StateRunning means a background indexing run is in progress.
	StateRunning IndexState = "running"
	// StateCancelling means cancellation was requested and the run will stop
	// after the item in progress.
	StateCancelling IndexState = "cancelling"
)

// IndexStatus is a snapshot of the process-wide indexing job. ProcessedItems
// counts items handled so far (including skipped ones); TotalItems is the
// enumeration count for the current run.
type IndexStatus struct {
	Status         IndexState `json:"status"`
	ProcessedItems int        `json:"processed_items"`
	TotalItems     int        `json:"total_items"`
}
