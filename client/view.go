package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/storage"
)

// ErrPending is returned when a change for the same target is still in
// flight. The caller should wait for the first change to settle rather than
// stacking a second one on an unconfirmed state.
var ErrPending = errors.New("change already in flight")

// actionKey identifies an in-flight mutation so repeat taps on the same
// sheet or button are rejected until the server confirms.
type actionKey struct {
	TargetID string
	Index    int
	Action   string
}

// JobView is a terminal's local copy of one job. Mutations apply to the copy
// immediately, then confirm against the server; on failure the copy reverts
// to its pre-change state. The synchronizer replaces the copy wholesale when
// fresher server state arrives.
type JobView struct {
	client *Client

	mu      sync.Mutex
	detail  *storage.JobDetail
	pending map[actionKey]struct{}
}

// NewJobView creates an empty view bound to a client. Call Load before use.
func NewJobView(c *Client) *JobView {
	return &JobView{
		client:  c,
		pending: make(map[actionKey]struct{}),
	}
}

// Load fetches the job's current state from the server.
func (v *JobView) Load(ctx context.Context, jobID string) error {
	detail, err := v.client.GetJobDetail(ctx, jobID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.detail = detail
	v.mu.Unlock()
	return nil
}

// Replace swaps in fresh server state. In-flight optimistic changes keep
// their pending flags; their confirmations re-apply on top.
func (v *JobView) Replace(detail *storage.JobDetail) {
	v.mu.Lock()
	v.detail = detail
	v.mu.Unlock()
}

// Detail returns the current view state. Nil until Load succeeds.
func (v *JobView) Detail() *storage.JobDetail {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detail
}

// JobID returns the viewed job's ID, or "" before Load.
func (v *JobView) JobID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.detail == nil {
		return ""
	}
	return v.detail.ID
}

// acquire marks key in flight. Reports false when it already is.
func (v *JobView) acquire(key actionKey) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.pending[key]; ok {
		return false
	}
	v.pending[key] = struct{}{}
	return true
}

func (v *JobView) release(key actionKey) {
	v.mu.Lock()
	delete(v.pending, key)
	v.mu.Unlock()
}

// findMaterial locates a material in the current view. Callers hold v.mu.
func (v *JobView) findMaterial(materialID string) *storage.MaterialDetail {
	if v.detail == nil {
		return nil
	}
	for ci := range v.detail.Cutlists {
		cl := &v.detail.Cutlists[ci]
		for mi := range cl.Materials {
			if cl.Materials[mi].ID == materialID {
				return &cl.Materials[mi]
			}
		}
	}
	return nil
}

// findRecut locates a recut batch and its parent material. Callers hold v.mu.
func (v *JobView) findRecut(recutID string) (*cutlist.RecutBatch, *storage.MaterialDetail) {
	if v.detail == nil {
		return nil, nil
	}
	for ci := range v.detail.Cutlists {
		cl := &v.detail.Cutlists[ci]
		for mi := range cl.Materials {
			if batch, ok := cl.Materials[mi].Recut(recutID); ok {
				return batch, &cl.Materials[mi]
			}
		}
	}
	return nil, nil
}

// recompute refreshes every derived progress figure from the raw sheet
// counts. Callers hold v.mu.
func (v *JobView) recompute() {
	if v.detail == nil {
		return
	}
	var jobTally cutlist.Tally
	for ci := range v.detail.Cutlists {
		cl := &v.detail.Cutlists[ci]
		var clTally cutlist.Tally
		for mi := range cl.Materials {
			md := &cl.Materials[mi]
			md.Progress = md.Material.Progress()
			md.Overall = md.Material.Tally().Progress()
			clTally.Merge(md.Material.Tally())
		}
		cl.Progress = clTally.Progress()
		jobTally.Merge(clTally)
	}
	v.detail.Progress = jobTally.Progress()
}

// ToggleSheet flips a sheet on a material's original run: tapping the status
// it already has clears it to pending. The flip shows immediately and
// reverts if the server rejects it.
func (v *JobView) ToggleSheet(ctx context.Context, materialID string, sheetIndex int, action cutlist.SheetStatus) error {
	key := actionKey{TargetID: materialID, Index: sheetIndex, Action: "sheet-status"}
	if !v.acquire(key) {
		return ErrPending
	}
	defer v.release(key)

	v.mu.Lock()
	md := v.findMaterial(materialID)
	if md == nil {
		v.mu.Unlock()
		return notInView(materialID)
	}
	before := cutlist.StatusAt(md.SheetStatuses, sheetIndex)
	target := cutlist.Toggle(before, action)
	if err := md.Material.SetSheetStatus(sheetIndex, target); err != nil {
		v.mu.Unlock()
		return err
	}
	v.recompute()
	v.mu.Unlock()

	if _, err := v.client.SetSheetStatus(ctx, materialID, sheetIndex, target); err != nil {
		v.mu.Lock()
		if md := v.findMaterial(materialID); md != nil {
			if revertErr := md.Material.SetSheetStatus(sheetIndex, before); revertErr == nil {
				v.recompute()
			}
		}
		v.mu.Unlock()
		return err
	}
	return nil
}

// ToggleRecutSheet is ToggleSheet for a recut batch's sheets.
func (v *JobView) ToggleRecutSheet(ctx context.Context, recutID string, sheetIndex int, action cutlist.SheetStatus) error {
	key := actionKey{TargetID: recutID, Index: sheetIndex, Action: "sheet-status"}
	if !v.acquire(key) {
		return ErrPending
	}
	defer v.release(key)

	v.mu.Lock()
	batch, md := v.findRecut(recutID)
	if batch == nil {
		v.mu.Unlock()
		return notInView(recutID)
	}
	before := cutlist.StatusAt(batch.SheetStatuses, sheetIndex)
	target := cutlist.Toggle(before, action)
	if _, err := md.Material.SetRecutSheetStatus(recutID, sheetIndex, target); err != nil {
		v.mu.Unlock()
		return err
	}
	v.recompute()
	v.mu.Unlock()

	if _, err := v.client.SetRecutSheetStatus(ctx, recutID, sheetIndex, target); err != nil {
		v.mu.Lock()
		if batch, md := v.findRecut(recutID); batch != nil {
			if _, revertErr := md.Material.SetRecutSheetStatus(recutID, sheetIndex, before); revertErr == nil {
				v.recompute()
			}
		}
		v.mu.Unlock()
		return err
	}
	return nil
}

// Transition applies a job status action optimistically. A 409 means another
// terminal moved the job first; the view reverts and the next sync shows the
// winner's state.
func (v *JobView) Transition(ctx context.Context, action string) error {
	v.mu.Lock()
	if v.detail == nil {
		v.mu.Unlock()
		return errors.New("view not loaded")
	}
	jobID := v.detail.ID
	v.mu.Unlock()

	key := actionKey{TargetID: jobID, Action: action}
	if !v.acquire(key) {
		return ErrPending
	}
	defer v.release(key)

	j, err := v.client.Transition(ctx, jobID, action)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.detail != nil && v.detail.ID == j.ID {
		v.detail.Job = j
	}
	v.mu.Unlock()
	return nil
}

// notInView is the error a view mutation returns when its target is no
// longer in the local copy, matching the server's 404 for the same case.
func notInView(id string) error {
	return &APIError{Status: http.StatusNotFound, Message: "not in view: " + id}
}
