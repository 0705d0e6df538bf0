package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/shopfloor/cutlist"
)

// Flat per-job collections: sheet stock, hardware allocations, rods, and
// part checklists. Plain CRUD records with no derived state; changes reach
// other terminals through the polling backstop rather than push events.

// StockRecord tracks non-colored sheet stock required for a job.
type StockRecord struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	MaterialType string    `json:"material_type"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HardwareRecord tracks hardware allocated to a job.
type HardwareRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RodRecord tracks hanging rods cut for a job.
type RodRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	LengthMM  int       `json:"length_mm"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChecklistItem is one entry on a job's part checklist.
type ChecklistItem struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Label     string    `json:"label"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// jobRecord is implemented by every flat record type so the generic CRUD
// helpers can scope and key them.
type jobRecord interface {
	recordID() string
	recordJobID() string
	recordCreatedAt() time.Time
	stamp(id string, now time.Time)
	touch(now time.Time)
}

func (r *StockRecord) recordID() string           { return r.ID }
func (r *StockRecord) recordJobID() string        { return r.JobID }
func (r *StockRecord) recordCreatedAt() time.Time { return r.CreatedAt }
func (r *StockRecord) stamp(id string, now time.Time) {
	r.ID, r.CreatedAt, r.UpdatedAt = id, now, now
}
func (r *StockRecord) touch(now time.Time) { r.UpdatedAt = now }

func (r *HardwareRecord) recordID() string           { return r.ID }
func (r *HardwareRecord) recordJobID() string        { return r.JobID }
func (r *HardwareRecord) recordCreatedAt() time.Time { return r.CreatedAt }
func (r *HardwareRecord) stamp(id string, now time.Time) {
	r.ID, r.CreatedAt, r.UpdatedAt = id, now, now
}
func (r *HardwareRecord) touch(now time.Time) { r.UpdatedAt = now }

func (r *RodRecord) recordID() string           { return r.ID }
func (r *RodRecord) recordJobID() string        { return r.JobID }
func (r *RodRecord) recordCreatedAt() time.Time { return r.CreatedAt }
func (r *RodRecord) stamp(id string, now time.Time) {
	r.ID, r.CreatedAt, r.UpdatedAt = id, now, now
}
func (r *RodRecord) touch(now time.Time) { r.UpdatedAt = now }

func (r *ChecklistItem) recordID() string           { return r.ID }
func (r *ChecklistItem) recordJobID() string        { return r.JobID }
func (r *ChecklistItem) recordCreatedAt() time.Time { return r.CreatedAt }
func (r *ChecklistItem) stamp(id string, now time.Time) {
	r.ID, r.CreatedAt, r.UpdatedAt = id, now, now
}
func (r *ChecklistItem) touch(now time.Time) { r.UpdatedAt = now }

// createRecord validates the job scope, assigns an ID, and stores rec.
func createRecord[T any, PT interface {
	jobRecord
	*T
}](ctx context.Context, s *Store, kv jetstream.KeyValue, entityType EntityType, jobID string, rec PT) error {
	jid, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return err
	}
	if _, err := getEntity[cutlist.Job](ctx, s.jobs, jid.ID); err != nil {
		return err
	}

	id := NewEntityID(entityType)
	rec.stamp(id.String(), time.Now())
	return putEntity(ctx, kv, id.ID, (*T)(rec))
}

// updateRecord loads the record named by recID, lets mutate edit it, and
// writes it back.
func updateRecord[T any, PT interface {
	jobRecord
	*T
}](ctx context.Context, kv jetstream.KeyValue, entityType EntityType, recID string, mutate func(PT) error) (PT, error) {
	id, err := parseTypedID(recID, entityType)
	if err != nil {
		return nil, err
	}
	rec, err := getEntity[T](ctx, kv, id.ID)
	if err != nil {
		return nil, err
	}
	p := PT(rec)
	if err := mutate(p); err != nil {
		return nil, err
	}
	p.touch(time.Now())
	if err := putEntity(ctx, kv, id.ID, rec); err != nil {
		return nil, err
	}
	return p, nil
}

// listRecordsByJob returns a job's records in creation order.
func listRecordsByJob[T any, PT interface {
	jobRecord
	*T
}](ctx context.Context, kv jetstream.KeyValue, jobID string) ([]PT, error) {
	all, err := listEntities[T](ctx, kv)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(all))
	for _, rec := range all {
		p := PT(rec)
		if p.recordJobID() == jobID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].recordCreatedAt().Equal(out[j].recordCreatedAt()) {
			return out[i].recordID() < out[j].recordID()
		}
		return out[i].recordCreatedAt().Before(out[j].recordCreatedAt())
	})
	return out, nil
}

func deleteRecord(ctx context.Context, kv jetstream.KeyValue, entityType EntityType, recID string) error {
	id, err := parseTypedID(recID, entityType)
	if err != nil {
		return err
	}
	if _, err := kv.Get(ctx, id.ID); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", recID, err)
	}
	if err := kv.Delete(ctx, id.ID); err != nil {
		return fmt.Errorf("delete %s: %w", recID, err)
	}
	return nil
}

// deleteRecordsByJob clears every flat record owned by a job. Used by the
// job delete cascade.
func (s *Store) deleteRecordsByJob(ctx context.Context, jobID string) error {
	buckets := []struct {
		kv         jetstream.KeyValue
		entityType EntityType
	}{
		{s.stock, EntityTypeStock},
		{s.hardware, EntityTypeHardware},
		{s.rods, EntityTypeRod},
		{s.checklists, EntityTypeChecklist},
	}
	for _, b := range buckets {
		ids, err := recordIDsByJob(ctx, b.kv, jobID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := b.kv.Delete(ctx, id); err != nil {
				return fmt.Errorf("cascade delete %s %s: %w", b.entityType, id, err)
			}
		}
	}
	return nil
}

// recordIDsByJob collects bucket keys whose record belongs to jobID. Only
// the job_id field is decoded.
func recordIDsByJob(ctx context.Context, kv jetstream.KeyValue, jobID string) ([]string, error) {
	type scope struct {
		JobID string `json:"job_id"`
	}
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	var out []string
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var sc scope
		if err := json.Unmarshal(entry.Value(), &sc); err != nil {
			continue
		}
		if sc.JobID == jobID {
			out = append(out, key)
		}
	}
	return out, nil
}

// AddStock records sheet stock against a job.
func (s *Store) AddStock(ctx context.Context, jobID, materialType string, quantity int) (*StockRecord, error) {
	if quantity <= 0 {
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("stock quantity must be positive, got %d", quantity)}
	}
	rec := &StockRecord{JobID: jobID, MaterialType: materialType, Quantity: quantity}
	if err := createRecord[StockRecord](ctx, s, s.stock, EntityTypeStock, jobID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListStockByJob returns a job's sheet stock records.
func (s *Store) ListStockByJob(ctx context.Context, jobID string) ([]*StockRecord, error) {
	return listRecordsByJob[StockRecord, *StockRecord](ctx, s.stock, jobID)
}

// UpdateStockQuantity replaces a stock record's quantity.
func (s *Store) UpdateStockQuantity(ctx context.Context, stockID string, quantity int) (*StockRecord, error) {
	return updateRecord[StockRecord](ctx, s.stock, EntityTypeStock, stockID, func(r *StockRecord) error {
		if quantity <= 0 {
			return &cutlist.ValidationError{Reason: fmt.Sprintf("stock quantity must be positive, got %d", quantity)}
		}
		r.Quantity = quantity
		return nil
	})
}

// DeleteStock removes a stock record.
func (s *Store) DeleteStock(ctx context.Context, stockID string) error {
	return deleteRecord(ctx, s.stock, EntityTypeStock, stockID)
}

// AddHardware records a hardware allocation against a job.
func (s *Store) AddHardware(ctx context.Context, jobID, name string, quantity int) (*HardwareRecord, error) {
	if quantity <= 0 {
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("hardware quantity must be positive, got %d", quantity)}
	}
	rec := &HardwareRecord{JobID: jobID, Name: name, Quantity: quantity}
	if err := createRecord[HardwareRecord](ctx, s, s.hardware, EntityTypeHardware, jobID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListHardwareByJob returns a job's hardware allocations.
func (s *Store) ListHardwareByJob(ctx context.Context, jobID string) ([]*HardwareRecord, error) {
	return listRecordsByJob[HardwareRecord, *HardwareRecord](ctx, s.hardware, jobID)
}

// UpdateHardwareQuantity replaces a hardware record's quantity.
func (s *Store) UpdateHardwareQuantity(ctx context.Context, hardwareID string, quantity int) (*HardwareRecord, error) {
	return updateRecord[HardwareRecord](ctx, s.hardware, EntityTypeHardware, hardwareID, func(r *HardwareRecord) error {
		if quantity <= 0 {
			return &cutlist.ValidationError{Reason: fmt.Sprintf("hardware quantity must be positive, got %d", quantity)}
		}
		r.Quantity = quantity
		return nil
	})
}

// DeleteHardware removes a hardware record.
func (s *Store) DeleteHardware(ctx context.Context, hardwareID string) error {
	return deleteRecord(ctx, s.hardware, EntityTypeHardware, hardwareID)
}

// AddRod records a rod against a job.
func (s *Store) AddRod(ctx context.Context, jobID, name string, lengthMM, quantity int) (*RodRecord, error) {
	if quantity <= 0 {
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("rod quantity must be positive, got %d", quantity)}
	}
	if lengthMM <= 0 {
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("rod length must be positive, got %d", lengthMM)}
	}
	rec := &RodRecord{JobID: jobID, Name: name, LengthMM: lengthMM, Quantity: quantity}
	if err := createRecord[RodRecord](ctx, s, s.rods, EntityTypeRod, jobID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRodsByJob returns a job's rod records.
func (s *Store) ListRodsByJob(ctx context.Context, jobID string) ([]*RodRecord, error) {
	return listRecordsByJob[RodRecord, *RodRecord](ctx, s.rods, jobID)
}

// DeleteRod removes a rod record.
func (s *Store) DeleteRod(ctx context.Context, rodID string) error {
	return deleteRecord(ctx, s.rods, EntityTypeRod, rodID)
}

// AddChecklistItem appends an entry to a job's part checklist.
func (s *Store) AddChecklistItem(ctx context.Context, jobID, label string) (*ChecklistItem, error) {
	if label == "" {
		return nil, &cutlist.ValidationError{Reason: "checklist label is required"}
	}
	rec := &ChecklistItem{JobID: jobID, Label: label}
	if err := createRecord[ChecklistItem](ctx, s, s.checklists, EntityTypeChecklist, jobID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListChecklistByJob returns a job's checklist entries.
func (s *Store) ListChecklistByJob(ctx context.Context, jobID string) ([]*ChecklistItem, error) {
	return listRecordsByJob[ChecklistItem, *ChecklistItem](ctx, s.checklists, jobID)
}

// SetChecklistItemDone sets an entry's done flag.
func (s *Store) SetChecklistItemDone(ctx context.Context, itemID string, done bool) (*ChecklistItem, error) {
	return updateRecord[ChecklistItem](ctx, s.checklists, EntityTypeChecklist, itemID, func(r *ChecklistItem) error {
		r.Done = done
		return nil
	})
}

// DeleteChecklistItem removes a checklist entry.
func (s *Store) DeleteChecklistItem(ctx context.Context, itemID string) error {
	return deleteRecord(ctx, s.checklists, EntityTypeChecklist, itemID)
}
