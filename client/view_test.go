package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/storage"
)

// fixtureDetail builds a one-cutlist, one-material job view.
func fixtureDetail(totalSheets int) *storage.JobDetail {
	m := &cutlist.Material{
		ID:          "material:m1",
		JobID:       "job:j1",
		CutlistID:   "cutlist:c1",
		Color:       "White",
		TotalSheets: totalSheets,
	}
	return &storage.JobDetail{
		Job: &cutlist.Job{ID: "job:j1", Name: "Test Job", Status: cutlist.JobWaiting},
		Cutlists: []storage.CutlistDetail{{
			Cutlist:   &cutlist.Cutlist{ID: "cutlist:c1", JobID: "job:j1", Name: "Main"},
			Materials: []storage.MaterialDetail{{Material: m}},
		}},
	}
}

func newViewAgainst(t *testing.T, handler http.Handler) *JobView {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	v := NewJobView(New(ts.URL))
	v.Replace(fixtureDetail(4))
	return v
}

func okMaterialHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sheetStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cutlist.Material{ID: "material:m1"})
	})
}

func TestToggleSheetOptimistic(t *testing.T) {
	v := newViewAgainst(t, okMaterialHandler(t))
	ctx := context.Background()

	if err := v.ToggleSheet(ctx, "material:m1", 1, cutlist.StatusCut); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	md := v.Detail().Cutlists[0].Materials[0]
	if s := cutlist.StatusAt(md.SheetStatuses, 1); s != cutlist.StatusCut {
		t.Errorf("sheet 1 = %s, want cut", s)
	}
	if md.Progress.Percentage != 25 {
		t.Errorf("percentage = %d, want 25", md.Progress.Percentage)
	}

	t.Run("second toggle clears", func(t *testing.T) {
		if err := v.ToggleSheet(ctx, "material:m1", 1, cutlist.StatusCut); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		md := v.Detail().Cutlists[0].Materials[0]
		if s := cutlist.StatusAt(md.SheetStatuses, 1); s != cutlist.StatusPending {
			t.Errorf("sheet 1 = %s, want pending", s)
		}
	})
}

func TestToggleSheetRollback(t *testing.T) {
	v := newViewAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	ctx := context.Background()

	err := v.ToggleSheet(ctx, "material:m1", 2, cutlist.StatusCut)
	if err == nil {
		t.Fatal("expected error")
	}

	// The optimistic flip must be undone.
	md := v.Detail().Cutlists[0].Materials[0]
	if s := cutlist.StatusAt(md.SheetStatuses, 2); s != cutlist.StatusPending {
		t.Errorf("sheet 2 = %s, want pending after rollback", s)
	}
	if md.Progress.Completed != 0 {
		t.Errorf("completed = %d, want 0 after rollback", md.Progress.Completed)
	}

	// A sheet that was already marked must revert to that mark, not to a
	// default.
	t.Run("restores prior skip mark", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		t.Cleanup(ts.Close)

		v := NewJobView(New(ts.URL))
		detail := fixtureDetail(4)
		m := detail.Cutlists[0].Materials[0].Material
		if err := m.SetSheetStatus(2, cutlist.StatusSkip); err != nil {
			t.Fatalf("seed status: %v", err)
		}
		v.Replace(detail)

		if err := v.ToggleSheet(ctx, "material:m1", 2, cutlist.StatusCut); err == nil {
			t.Fatal("expected error")
		}

		md := v.Detail().Cutlists[0].Materials[0]
		if s := cutlist.StatusAt(md.SheetStatuses, 2); s != cutlist.StatusSkip {
			t.Errorf("sheet 2 = %s, want skip restored", s)
		}
		if md.Progress.Skipped != 1 {
			t.Errorf("skipped = %d, want 1 after rollback", md.Progress.Skipped)
		}
	})
}

func TestToggleSheetBlocksWhilePending(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	v := newViewAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cutlist.Material{ID: "material:m1"})
	}))
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- v.ToggleSheet(ctx, "material:m1", 0, cutlist.StatusCut)
	}()

	<-started
	if err := v.ToggleSheet(ctx, "material:m1", 0, cutlist.StatusCut); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}

	// A different sheet is not blocked.
	if err := v.ToggleSheet(ctx, "material:m1", 3, cutlist.StatusSkip); errors.Is(err, ErrPending) {
		t.Error("unrelated sheet blocked by pending flag")
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first toggle: %v", err)
	}
}

func TestTransitionConflictSurfaced(t *testing.T) {
	v := newViewAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job is done", http.StatusConflict)
	}))

	err := v.Transition(context.Background(), "start")
	if !IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
	// Local status untouched.
	if v.Detail().Status != cutlist.JobWaiting {
		t.Errorf("status = %s, want waiting", v.Detail().Status)
	}
}

func TestRecomputeRollsUpTallies(t *testing.T) {
	v := NewJobView(New("http://unused"))
	detail := fixtureDetail(10)
	m := detail.Cutlists[0].Materials[0].Material
	for i := 0; i < 4; i++ {
		if err := m.SetSheetStatus(i, cutlist.StatusCut); err != nil {
			t.Fatalf("set status: %v", err)
		}
	}
	if err := m.SetSheetStatus(4, cutlist.StatusSkip); err != nil {
		t.Fatalf("set status: %v", err)
	}
	v.Replace(detail)

	v.mu.Lock()
	v.recompute()
	v.mu.Unlock()

	// 4 cut of 9 effective (one skipped) is 44%.
	got := v.Detail().Progress
	if got.Completed != 4 || got.Skipped != 1 || got.EffectiveTotal != 9 {
		t.Errorf("unexpected tally: %+v", got)
	}
	if got.Percentage != 44 {
		t.Errorf("percentage = %d, want 44", got.Percentage)
	}
}
