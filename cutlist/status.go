// Package cutlist models cut-list tracking for the shop floor: per-sheet
// cutting status on a material, recut batches layered on top of the original
// sheet count, progress aggregation, and the job status state machine.
package cutlist

// SheetStatus is the cutting state of a single sheet.
type SheetStatus string

const (
	// StatusPending marks a sheet that has not been cut or skipped.
	StatusPending SheetStatus = "pending"
	// StatusCut marks a sheet that has been cut.
	StatusCut SheetStatus = "cut"
	// StatusSkip marks a sheet excluded from the effective total.
	StatusSkip SheetStatus = "skip"
)

// Valid reports whether s is one of the three known status values.
func (s SheetStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCut, StatusSkip:
		return true
	}
	return false
}

// StatusAt returns the status at index i. Stored status slices may be shorter
// than the sheet count they describe; missing entries read as pending.
func StatusAt(statuses []SheetStatus, i int) SheetStatus {
	if i < 0 || i >= len(statuses) {
		return StatusPending
	}
	if statuses[i] == "" {
		return StatusPending
	}
	return statuses[i]
}

// setStatusAt writes status at index i, extending the slice with pending
// entries when it is shorter than i+1.
func setStatusAt(statuses []SheetStatus, i int, status SheetStatus) []SheetStatus {
	for len(statuses) <= i {
		statuses = append(statuses, StatusPending)
	}
	statuses[i] = status
	return statuses
}

// Toggle resolves the status that results from pressing the cut or skip
// button on a sheet currently in state current. Pressing the button matching
// the current state reverts the sheet to pending; pressing the other button
// replaces the mark, so a sheet is never both cut and skipped.
func Toggle(current, action SheetStatus) SheetStatus {
	if current == action {
		return StatusPending
	}
	return action
}
