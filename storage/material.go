package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/events"
)

// CreateMaterial adds a material to a cutlist. The job scope is derived from
// the parent cutlist; TotalSheets must be non-negative.
func (s *Store) CreateMaterial(ctx context.Context, cutlistID, color string, totalSheets int) (*cutlist.Material, error) {
	if totalSheets < 0 {
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("total sheets must not be negative, got %d", totalSheets)}
	}

	clID, err := parseTypedID(cutlistID, EntityTypeCutlist)
	if err != nil {
		return nil, err
	}
	cl, err := getEntity[cutlist.Cutlist](ctx, s.cutlists, clID.ID)
	if err != nil {
		return nil, err
	}

	id := NewEntityID(EntityTypeMaterial)
	now := time.Now()
	m := &cutlist.Material{
		ID:          id.String(),
		JobID:       cl.JobID,
		CutlistID:   cl.ID,
		Color:       color,
		TotalSheets: totalSheets,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := putEntity(ctx, s.materials, id.ID, m); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeMaterialUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
	})
	return m, nil
}

// GetMaterial retrieves a material by ID.
func (s *Store) GetMaterial(ctx context.Context, materialID string) (*cutlist.Material, error) {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	return getEntity[cutlist.Material](ctx, s.materials, id.ID)
}

// ListMaterialsByCutlist returns a cutlist's materials in creation order.
func (s *Store) ListMaterialsByCutlist(ctx context.Context, cutlistID string) ([]*cutlist.Material, error) {
	all, err := listEntities[cutlist.Material](ctx, s.materials)
	if err != nil {
		return nil, err
	}
	materials := make([]*cutlist.Material, 0, len(all))
	for _, m := range all {
		if m.CutlistID == cutlistID {
			materials = append(materials, m)
		}
	}
	sortMaterials(materials)
	return materials, nil
}

// ListMaterialsByJob returns every material in a job across all cutlists.
func (s *Store) ListMaterialsByJob(ctx context.Context, jobID string) ([]*cutlist.Material, error) {
	all, err := listEntities[cutlist.Material](ctx, s.materials)
	if err != nil {
		return nil, err
	}
	materials := make([]*cutlist.Material, 0, len(all))
	for _, m := range all {
		if m.JobID == jobID {
			materials = append(materials, m)
		}
	}
	sortMaterials(materials)
	return materials, nil
}

func sortMaterials(materials []*cutlist.Material) {
	sort.Slice(materials, func(i, j int) bool {
		if materials[i].CreatedAt.Equal(materials[j].CreatedAt) {
			return materials[i].ID < materials[j].ID
		}
		return materials[i].CreatedAt.Before(materials[j].CreatedAt)
	})
}

// DeleteMaterial removes a material and its recut batches.
func (s *Store) DeleteMaterial(ctx context.Context, materialID string) error {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return err
	}
	m, err := getEntity[cutlist.Material](ctx, s.materials, id.ID)
	if err != nil {
		return err
	}
	if err := s.materials.Delete(ctx, id.ID); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeMaterialUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
	})
	return nil
}

// SetSheetStatus writes the status at sheetIndex on a material's original
// sheets and persists the result. The write is idempotent for the same
// (material, index, status) triple, so callers may retry transient failures.
func (s *Store) SetSheetStatus(ctx context.Context, materialID string, sheetIndex int, status cutlist.SheetStatus) (*cutlist.Material, error) {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	m, err := getEntity[cutlist.Material](ctx, s.materials, id.ID)
	if err != nil {
		return nil, err
	}

	if err := m.SetSheetStatus(sheetIndex, status); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now()
	if err := putEntity(ctx, s.materials, id.ID, m); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeSheetStatusUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
		SheetIndex: &sheetIndex,
		Status:     status,
	})
	return m, nil
}

// AddSheets raises a material's sheet count by additional pending slots.
func (s *Store) AddSheets(ctx context.Context, materialID string, additional int) (*cutlist.Material, error) {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	m, err := getEntity[cutlist.Material](ctx, s.materials, id.ID)
	if err != nil {
		return nil, err
	}

	if err := m.AddSheets(additional); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now()
	if err := putEntity(ctx, s.materials, id.ID, m); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeMaterialUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
	})
	return m, nil
}

// DeleteSheet removes the slot at sheetIndex from a material. Only skipped
// sheets may be deleted.
func (s *Store) DeleteSheet(ctx context.Context, materialID string, sheetIndex int) (*cutlist.Material, error) {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	m, err := getEntity[cutlist.Material](ctx, s.materials, id.ID)
	if err != nil {
		return nil, err
	}

	if err := m.DeleteSheet(sheetIndex); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now()
	if err := putEntity(ctx, s.materials, id.ID, m); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeMaterialUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
	})
	return m, nil
}

// AddRecut layers a new recut batch on a material and returns the batch.
func (s *Store) AddRecut(ctx context.Context, materialID string, quantity int, reason string) (*cutlist.RecutBatch, error) {
	id, err := parseTypedID(materialID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	m, err := getEntity[cutlist.Material](ctx, s.materials, id.ID)
	if err != nil {
		return nil, err
	}

	batch, err := m.AddRecut(quantity, reason)
	if err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now()
	if err := putEntity(ctx, s.materials, id.ID, m); err != nil {
		return nil, err
	}

	created := *batch
	s.notifier.Publish(events.Event{
		Type:       events.TypeRecutAdded,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
		RecutID:    created.ID,
	})
	return &created, nil
}

// findMaterialByRecut scans materials for the one owning the given batch.
func (s *Store) findMaterialByRecut(ctx context.Context, recutID string) (*cutlist.Material, error) {
	all, err := listEntities[cutlist.Material](ctx, s.materials)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if _, ok := m.Recut(recutID); ok {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// GetRecut retrieves a recut batch and its parent material.
func (s *Store) GetRecut(ctx context.Context, recutID string) (*cutlist.RecutBatch, *cutlist.Material, error) {
	m, err := s.findMaterialByRecut(ctx, recutID)
	if err != nil {
		return nil, nil, err
	}
	batch, _ := m.Recut(recutID)
	return batch, m, nil
}

// SetRecutSheetStatus writes the status at sheetIndex on a recut batch,
// scoped to the batch's own status slice and bounded by its quantity.
func (s *Store) SetRecutSheetStatus(ctx context.Context, recutID string, sheetIndex int, status cutlist.SheetStatus) (*cutlist.RecutBatch, error) {
	m, err := s.findMaterialByRecut(ctx, recutID)
	if err != nil {
		return nil, err
	}

	found, err := m.SetRecutSheetStatus(recutID, sheetIndex, status)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	m.UpdatedAt = time.Now()
	mid, err := parseTypedID(m.ID, EntityTypeMaterial)
	if err != nil {
		return nil, err
	}
	if err := putEntity(ctx, s.materials, mid.ID, m); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeRecutSheetStatusUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
		RecutID:    recutID,
		SheetIndex: &sheetIndex,
		Status:     status,
	})

	batch, _ := m.Recut(recutID)
	updated := *batch
	return &updated, nil
}

// DeleteRecut removes a recut batch. The parent material's own sheets and
// sibling batches are unaffected.
func (s *Store) DeleteRecut(ctx context.Context, recutID string) error {
	m, err := s.findMaterialByRecut(ctx, recutID)
	if err != nil {
		return err
	}

	if !m.DeleteRecut(recutID) {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now()
	mid, err := parseTypedID(m.ID, EntityTypeMaterial)
	if err != nil {
		return err
	}
	if err := putEntity(ctx, s.materials, mid.ID, m); err != nil {
		return err
	}

	s.notifier.Publish(events.Event{
		Type:       events.TypeMaterialUpdated,
		JobID:      m.JobID,
		CutlistID:  m.CutlistID,
		MaterialID: m.ID,
		RecutID:    recutID,
	})
	return nil
}
