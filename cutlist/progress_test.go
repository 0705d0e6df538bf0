package cutlist

import "testing"

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []SheetStatus
		total    int
		want     Progress
	}{
		{
			name: "mixed statuses",
			statuses: []SheetStatus{
				StatusCut, StatusCut, StatusSkip, StatusPending, StatusPending,
				StatusPending, StatusPending, StatusPending, StatusPending, StatusPending,
			},
			total: 10,
			want:  Progress{Completed: 2, Skipped: 1, EffectiveTotal: 9, Percentage: 22},
		},
		{
			name:     "short slice counts missing as pending",
			statuses: []SheetStatus{StatusCut},
			total:    4,
			want:     Progress{Completed: 1, Skipped: 0, EffectiveTotal: 4, Percentage: 25},
		},
		{
			name:     "all skipped guards division by zero",
			statuses: []SheetStatus{StatusSkip, StatusSkip, StatusSkip},
			total:    3,
			want:     Progress{Completed: 0, Skipped: 3, EffectiveTotal: 0, Percentage: 0},
		},
		{
			name:     "empty material",
			statuses: nil,
			total:    0,
			want:     Progress{},
		},
		{
			name:     "complete",
			statuses: []SheetStatus{StatusCut, StatusCut},
			total:    2,
			want:     Progress{Completed: 2, Skipped: 0, EffectiveTotal: 2, Percentage: 100},
		},
		{
			name:     "rounds half up",
			statuses: []SheetStatus{StatusCut, StatusPending, StatusPending, StatusPending,
				StatusPending, StatusPending, StatusPending, StatusPending},
			total: 8,
			want:  Progress{Completed: 1, Skipped: 0, EffectiveTotal: 8, Percentage: 13},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.statuses, tt.total); got != tt.want {
				t.Errorf("Aggregate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestJobLevelSummation(t *testing.T) {
	// Material A: 4 sheets, 2 cut. Material B: 6 sheets, 1 cut, 1 skip.
	// The roll-up must recompute from summed counts (33%), not average the
	// per-material percentages (50% and 20% average to 35%).
	a := &Material{TotalSheets: 4, SheetStatuses: []SheetStatus{StatusCut, StatusCut}}
	b := &Material{TotalSheets: 6, SheetStatuses: []SheetStatus{StatusCut, StatusSkip}}

	var tally Tally
	tally.Merge(a.Tally())
	tally.Merge(b.Tally())

	got := tally.Progress()
	want := Progress{Completed: 3, Skipped: 1, EffectiveTotal: 9, Percentage: 33}
	if got != want {
		t.Errorf("job progress = %+v, want %+v", got, want)
	}

	if a.Progress().Percentage != 50 || b.Progress().Percentage != 20 {
		t.Errorf("per-material percentages = %d/%d, want 50/20",
			a.Progress().Percentage, b.Progress().Percentage)
	}
}

func TestMaterialTallyIncludesRecuts(t *testing.T) {
	m := &Material{
		TotalSheets:   3,
		SheetStatuses: []SheetStatus{StatusCut, StatusCut, StatusCut},
	}
	batch, err := m.AddRecut(2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.SetRecutSheetStatus(batch.ID, 0, StatusCut); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := m.Tally().Progress()
	want := Progress{Completed: 4, Skipped: 0, EffectiveTotal: 5, Percentage: 80}
	if got != want {
		t.Errorf("material tally progress = %+v, want %+v", got, want)
	}

	// The batch's own progress stays scoped to the batch.
	if p := batch.Progress(); p.Percentage != 50 {
		t.Errorf("batch percentage = %d, want 50", p.Percentage)
	}
}

func TestTallyExcessSkipsClampEffectiveTotal(t *testing.T) {
	// More skips than the logical total cannot drive the effective total
	// negative.
	p := Aggregate([]SheetStatus{StatusSkip, StatusSkip}, 1)
	if p.EffectiveTotal != 0 || p.Percentage != 0 {
		t.Errorf("progress = %+v, want zero effective total and percentage", p)
	}
}
