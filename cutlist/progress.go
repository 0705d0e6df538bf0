package cutlist

import "math"

// Progress is the derived completion state for one status slice, a whole
// material, or an entire job. It is never stored; readers recompute it from
// the raw counts on every read.
type Progress struct {
	Completed      int `json:"completed"`
	Skipped        int `json:"skipped"`
	EffectiveTotal int `json:"effective_total"`
	Percentage     int `json:"percentage"`
}

// Aggregate derives progress for a single status slice against its logical
// total. The effective total is the logical total minus skipped sheets; the
// percentage is completed over effective, rounded to the nearest integer,
// and 0 when every sheet is skipped.
func Aggregate(statuses []SheetStatus, logicalTotal int) Progress {
	var completed, skipped int
	for _, s := range statuses {
		switch s {
		case StatusCut:
			completed++
		case StatusSkip:
			skipped++
		}
	}
	return tallyProgress(completed, skipped, logicalTotal)
}

func tallyProgress(completed, skipped, logicalTotal int) Progress {
	effective := logicalTotal - skipped
	if effective < 0 {
		effective = 0
	}
	pct := 0
	if effective > 0 {
		pct = int(math.Round(100 * float64(completed) / float64(effective)))
	}
	return Progress{
		Completed:      completed,
		Skipped:        skipped,
		EffectiveTotal: effective,
		Percentage:     pct,
	}
}

// Tally accumulates raw counts across status slices so that a roll-up
// percentage is computed from summed counts, never by averaging per-material
// percentages; averaging skews the result when sheet counts differ.
type Tally struct {
	Completed int
	Skipped   int
	Total     int
}

// Add counts one status slice with its logical total into the tally.
func (t *Tally) Add(statuses []SheetStatus, logicalTotal int) {
	for _, s := range statuses {
		switch s {
		case StatusCut:
			t.Completed++
		case StatusSkip:
			t.Skipped++
		}
	}
	t.Total += logicalTotal
}

// Merge folds another tally into this one.
func (t *Tally) Merge(other Tally) {
	t.Completed += other.Completed
	t.Skipped += other.Skipped
	t.Total += other.Total
}

// Progress derives the roll-up progress from the accumulated counts.
func (t Tally) Progress() Progress {
	return tallyProgress(t.Completed, t.Skipped, t.Total)
}

// Tally counts the material's original sheets and every recut batch.
func (m *Material) Tally() Tally {
	var t Tally
	t.Add(m.SheetStatuses, m.TotalSheets)
	for i := range m.Recuts {
		t.Add(m.Recuts[i].SheetStatuses, m.Recuts[i].Quantity)
	}
	return t
}

// Progress derives the material's own progress, original sheets only.
func (m *Material) Progress() Progress {
	return Aggregate(m.SheetStatuses, m.TotalSheets)
}

// Progress derives the batch's progress against its quantity.
func (b *RecutBatch) Progress() Progress {
	return Aggregate(b.SheetStatuses, b.Quantity)
}
