package cutlist

import (
	"time"

	"github.com/google/uuid"
)

// Material is a color/finish instance within a cutlist. It carries the
// original sheet count, the per-sheet statuses for those sheets, and any
// recut batches layered on top. The status slice may be shorter than
// TotalSheets; missing entries read as pending (see StatusAt).
type Material struct {
	ID            string        `json:"id"`
	JobID         string        `json:"job_id"`
	CutlistID     string        `json:"cutlist_id"`
	Color         string        `json:"color"`
	TotalSheets   int           `json:"total_sheets"`
	SheetStatuses []SheetStatus `json:"sheet_statuses"`
	Recuts        []RecutBatch  `json:"recuts,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RecutBatch is an independent run of replacement sheets for a material.
// Quantity is fixed at creation; the batch keeps its own status slice with
// the same implicit-pending semantics as the material's original sheets.
type RecutBatch struct {
	ID            string        `json:"id"`
	Quantity      int           `json:"quantity"`
	Reason        string        `json:"reason,omitempty"`
	SheetStatuses []SheetStatus `json:"sheet_statuses"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SetSheetStatus writes status at sheetIndex on the material's original
// sheets. The index must fall inside [0, TotalSheets); the stored slice is
// extended with pending entries when shorter. Repeating the call with the
// same arguments leaves the stored state unchanged.
func (m *Material) SetSheetStatus(sheetIndex int, status SheetStatus) error {
	if !status.Valid() {
		return validationf("unknown sheet status %q", status)
	}
	if sheetIndex < 0 || sheetIndex >= m.TotalSheets {
		return validationf("sheet index %d out of range for %d sheets", sheetIndex, m.TotalSheets)
	}
	m.SheetStatuses = setStatusAt(m.SheetStatuses, sheetIndex, status)
	return nil
}

// AddSheets raises the original sheet count by additional. Existing statuses
// are untouched; the new slots read as pending.
func (m *Material) AddSheets(additional int) error {
	if additional <= 0 {
		return validationf("additional sheet count must be positive, got %d", additional)
	}
	m.TotalSheets += additional
	return nil
}

// DeleteSheet removes the slot at sheetIndex, shifting later sheets down and
// decrementing the total. Only skipped sheets may be deleted; the toggle UI
// exposes deletion for those alone and the store enforces the same rule.
func (m *Material) DeleteSheet(sheetIndex int) error {
	if sheetIndex < 0 || sheetIndex >= m.TotalSheets {
		return validationf("sheet index %d out of range for %d sheets", sheetIndex, m.TotalSheets)
	}
	if StatusAt(m.SheetStatuses, sheetIndex) != StatusSkip {
		return validationf("sheet %d is not skipped; only skipped sheets can be deleted", sheetIndex)
	}
	if sheetIndex < len(m.SheetStatuses) {
		m.SheetStatuses = append(m.SheetStatuses[:sheetIndex], m.SheetStatuses[sheetIndex+1:]...)
	}
	m.TotalSheets--
	return nil
}

// AddRecut appends a new recut batch with an all-pending status slice and
// returns it. Quantity must be positive; it cannot be resized afterwards.
func (m *Material) AddRecut(quantity int, reason string) (*RecutBatch, error) {
	if quantity <= 0 {
		return nil, validationf("recut quantity must be positive, got %d", quantity)
	}
	batch := RecutBatch{
		ID:        uuid.New().String(),
		Quantity:  quantity,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	m.Recuts = append(m.Recuts, batch)
	return &m.Recuts[len(m.Recuts)-1], nil
}

// Recut returns the recut batch with the given ID.
func (m *Material) Recut(recutID string) (*RecutBatch, bool) {
	for i := range m.Recuts {
		if m.Recuts[i].ID == recutID {
			return &m.Recuts[i], true
		}
	}
	return nil, false
}

// SetRecutSheetStatus writes status at sheetIndex on the named recut batch.
// The contract mirrors SetSheetStatus, bounded by the batch's quantity.
// Returns false when the material has no such batch.
func (m *Material) SetRecutSheetStatus(recutID string, sheetIndex int, status SheetStatus) (bool, error) {
	batch, ok := m.Recut(recutID)
	if !ok {
		return false, nil
	}
	if !status.Valid() {
		return true, validationf("unknown sheet status %q", status)
	}
	if sheetIndex < 0 || sheetIndex >= batch.Quantity {
		return true, validationf("sheet index %d out of range for recut of %d sheets", sheetIndex, batch.Quantity)
	}
	batch.SheetStatuses = setStatusAt(batch.SheetStatuses, sheetIndex, status)
	return true, nil
}

// DeleteRecut removes the batch with the given ID. Sibling batches and the
// material's own sheets are unaffected. Returns false when absent.
func (m *Material) DeleteRecut(recutID string) bool {
	for i := range m.Recuts {
		if m.Recuts[i].ID == recutID {
			m.Recuts = append(m.Recuts[:i], m.Recuts[i+1:]...)
			return true
		}
	}
	return false
}
