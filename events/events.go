// Package events defines the shop-floor change events and the notifier that
// fans them out to connected terminals over NATS.
//
// Subjects follow "shopfloor.events.<domain>.<action>" so consumers can
// subscribe to a single event type or to the whole tree with
// SubjectWildcard. Delivery is best-effort/at-most-once on core NATS:
// there is no redelivery or ordering guarantee, and clients that miss an
// event resynchronize through their polling backstop.
package events

import (
	"time"

	"github.com/c360studio/shopfloor/cutlist"
)

// Event type discriminators, carried in the payload's "type" field.
const (
	TypeSheetStatusUpdated      = "sheet_status_updated"
	TypeRecutSheetStatusUpdated = "recut_sheet_status_updated"
	TypeRecutAdded              = "recut_added"
	TypeMaterialUpdated         = "material_updated"
	TypeJobTimerStarted         = "job_timer_started"
	TypeJobTimerStopped         = "job_timer_stopped"
)

// Per-event-type subjects.
const (
	SubjectSheetStatusUpdated      = "shopfloor.events.material.sheet_status_updated"
	SubjectRecutSheetStatusUpdated = "shopfloor.events.material.recut_sheet_status_updated"
	SubjectRecutAdded              = "shopfloor.events.material.recut_added"
	SubjectMaterialUpdated         = "shopfloor.events.material.updated"
	SubjectJobTimerStarted         = "shopfloor.events.job.timer_started"
	SubjectJobTimerStopped         = "shopfloor.events.job.timer_stopped"

	// SubjectWildcard matches every shop-floor event.
	SubjectWildcard = "shopfloor.events.>"
)

// Event is the wire payload pushed to clients whenever server state mutates.
// Type is always set; the remaining fields identify the affected job,
// material, or recut batch for the given event type.
type Event struct {
	Type       string              `json:"type"`
	JobID      string              `json:"job_id"`
	CutlistID  string              `json:"cutlist_id,omitempty"`
	MaterialID string              `json:"material_id,omitempty"`
	RecutID    string              `json:"recut_id,omitempty"`
	SheetIndex *int                `json:"sheet_index,omitempty"`
	Status     cutlist.SheetStatus `json:"status,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Subject returns the NATS subject for the event's type, or "" for an
// unknown type.
func (e Event) Subject() string {
	switch e.Type {
	case TypeSheetStatusUpdated:
		return SubjectSheetStatusUpdated
	case TypeRecutSheetStatusUpdated:
		return SubjectRecutSheetStatusUpdated
	case TypeRecutAdded:
		return SubjectRecutAdded
	case TypeMaterialUpdated:
		return SubjectMaterialUpdated
	case TypeJobTimerStarted:
		return SubjectJobTimerStarted
	case TypeJobTimerStopped:
		return SubjectJobTimerStopped
	}
	return ""
}
