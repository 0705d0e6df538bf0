package storage

import (
	"context"

	"github.com/c360studio/shopfloor/cutlist"
)

// MaterialDetail is a material with its derived progress. Overall covers the
// original sheets plus every recut batch; Progress covers the original sheets
// only.
type MaterialDetail struct {
	*cutlist.Material
	Progress cutlist.Progress `json:"progress"`
	Overall  cutlist.Progress `json:"overall_progress"`
}

// CutlistDetail is a cutlist with its materials and rolled-up progress.
type CutlistDetail struct {
	*cutlist.Cutlist
	Materials []MaterialDetail `json:"materials"`
	Progress  cutlist.Progress `json:"progress"`
}

// JobDetail is the full job view a terminal renders: the job, its cutlists
// with materials, overall progress, and the flat per-job records.
type JobDetail struct {
	*cutlist.Job
	Cutlists  []CutlistDetail   `json:"cutlists"`
	Progress  cutlist.Progress  `json:"progress"`
	Stock     []*StockRecord    `json:"stock"`
	Hardware  []*HardwareRecord `json:"hardware"`
	Rods      []*RodRecord      `json:"rods"`
	Checklist []*ChecklistItem  `json:"checklist"`
}

func newMaterialDetail(m *cutlist.Material) MaterialDetail {
	return MaterialDetail{
		Material: m,
		Progress: m.Progress(),
		Overall:  m.Tally().Progress(),
	}
}

// GetMaterialDetail retrieves a material with derived progress.
func (s *Store) GetMaterialDetail(ctx context.Context, materialID string) (*MaterialDetail, error) {
	m, err := s.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	d := newMaterialDetail(m)
	return &d, nil
}

// GetCutlistDetail retrieves a cutlist with its materials and progress.
// Cutlist progress sums raw sheet counts across materials rather than
// averaging per-material percentages, so large materials weigh more.
func (s *Store) GetCutlistDetail(ctx context.Context, cutlistID string) (*CutlistDetail, error) {
	cl, err := s.GetCutlist(ctx, cutlistID)
	if err != nil {
		return nil, err
	}
	d, err := s.buildCutlistDetail(ctx, cl)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) buildCutlistDetail(ctx context.Context, cl *cutlist.Cutlist) (*CutlistDetail, error) {
	materials, err := s.ListMaterialsByCutlist(ctx, cl.ID)
	if err != nil {
		return nil, err
	}

	d := &CutlistDetail{
		Cutlist:   cl,
		Materials: make([]MaterialDetail, 0, len(materials)),
	}
	var tally cutlist.Tally
	for _, m := range materials {
		d.Materials = append(d.Materials, newMaterialDetail(m))
		tally.Merge(m.Tally())
	}
	d.Progress = tally.Progress()
	return d, nil
}

// GetJobDetail assembles the complete view of a job.
func (s *Store) GetJobDetail(ctx context.Context, jobID string) (*JobDetail, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	cutlists, err := s.ListCutlistsByJob(ctx, j.ID)
	if err != nil {
		return nil, err
	}

	d := &JobDetail{
		Job:      j,
		Cutlists: make([]CutlistDetail, 0, len(cutlists)),
	}
	var tally cutlist.Tally
	for _, cl := range cutlists {
		cd, err := s.buildCutlistDetail(ctx, cl)
		if err != nil {
			return nil, err
		}
		d.Cutlists = append(d.Cutlists, *cd)
		for _, m := range cd.Materials {
			tally.Merge(m.Tally())
		}
	}
	d.Progress = tally.Progress()

	if d.Stock, err = s.ListStockByJob(ctx, j.ID); err != nil {
		return nil, err
	}
	if d.Hardware, err = s.ListHardwareByJob(ctx, j.ID); err != nil {
		return nil, err
	}
	if d.Rods, err = s.ListRodsByJob(ctx, j.ID); err != nil {
		return nil, err
	}
	if d.Checklist, err = s.ListChecklistByJob(ctx, j.ID); err != nil {
		return nil, err
	}
	return d, nil
}
