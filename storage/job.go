package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/events"
)

// CreateJob creates a new waiting job.
func (s *Store) CreateJob(ctx context.Context, name, customer string) (*cutlist.Job, error) {
	if name == "" {
		return nil, &cutlist.ValidationError{Reason: "job name is required"}
	}

	id := NewEntityID(EntityTypeJob)
	now := time.Now()
	j := &cutlist.Job{
		ID:        id.String(),
		Name:      name,
		Customer:  customer,
		Status:    cutlist.JobWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := putEntity(ctx, s.jobs, id.ID, j); err != nil {
		return nil, err
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*cutlist.Job, error) {
	id, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return nil, err
	}
	return getEntity[cutlist.Job](ctx, s.jobs, id.ID)
}

// ListJobs returns all jobs, oldest first.
func (s *Store) ListJobs(ctx context.Context) ([]*cutlist.Job, error) {
	jobs, err := listEntities[cutlist.Job](ctx, s.jobs)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// DeleteJob removes a job and cascades to its cutlists, materials, and flat
// records. Cascade deletes do not notify per entity.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	id, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return err
	}
	j, err := getEntity[cutlist.Job](ctx, s.jobs, id.ID)
	if err != nil {
		return err
	}

	cutlists, err := s.ListCutlistsByJob(ctx, j.ID)
	if err != nil {
		return err
	}
	for _, cl := range cutlists {
		if err := s.deleteCutlistCascade(ctx, cl); err != nil {
			return err
		}
	}

	if err := s.deleteRecordsByJob(ctx, j.ID); err != nil {
		return err
	}

	if err := s.jobs.Delete(ctx, id.ID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// CreateCutlist appends a cutlist to a job.
func (s *Store) CreateCutlist(ctx context.Context, jobID, name string) (*cutlist.Cutlist, error) {
	jid, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return nil, err
	}
	if _, err := getEntity[cutlist.Job](ctx, s.jobs, jid.ID); err != nil {
		return nil, err
	}

	existing, err := s.ListCutlistsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	id := NewEntityID(EntityTypeCutlist)
	now := time.Now()
	cl := &cutlist.Cutlist{
		ID:        id.String(),
		JobID:     jobID,
		Name:      name,
		Position:  len(existing),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := putEntity(ctx, s.cutlists, id.ID, cl); err != nil {
		return nil, err
	}
	return cl, nil
}

// GetCutlist retrieves a cutlist by ID.
func (s *Store) GetCutlist(ctx context.Context, cutlistID string) (*cutlist.Cutlist, error) {
	id, err := parseTypedID(cutlistID, EntityTypeCutlist)
	if err != nil {
		return nil, err
	}
	return getEntity[cutlist.Cutlist](ctx, s.cutlists, id.ID)
}

// ListCutlistsByJob returns a job's cutlists in position order.
func (s *Store) ListCutlistsByJob(ctx context.Context, jobID string) ([]*cutlist.Cutlist, error) {
	all, err := listEntities[cutlist.Cutlist](ctx, s.cutlists)
	if err != nil {
		return nil, err
	}
	cutlists := make([]*cutlist.Cutlist, 0, len(all))
	for _, cl := range all {
		if cl.JobID == jobID {
			cutlists = append(cutlists, cl)
		}
	}
	sort.Slice(cutlists, func(i, j int) bool {
		return cutlists[i].Position < cutlists[j].Position
	})
	return cutlists, nil
}

// DeleteCutlist removes a cutlist and its materials.
func (s *Store) DeleteCutlist(ctx context.Context, cutlistID string) error {
	id, err := parseTypedID(cutlistID, EntityTypeCutlist)
	if err != nil {
		return err
	}
	cl, err := getEntity[cutlist.Cutlist](ctx, s.cutlists, id.ID)
	if err != nil {
		return err
	}
	return s.deleteCutlistCascade(ctx, cl)
}

func (s *Store) deleteCutlistCascade(ctx context.Context, cl *cutlist.Cutlist) error {
	materials, err := s.ListMaterialsByCutlist(ctx, cl.ID)
	if err != nil {
		return err
	}
	for _, m := range materials {
		mid, err := parseTypedID(m.ID, EntityTypeMaterial)
		if err != nil {
			continue
		}
		if err := s.materials.Delete(ctx, mid.ID); err != nil {
			return fmt.Errorf("delete material %s: %w", m.ID, err)
		}
	}

	clID, err := parseTypedID(cl.ID, EntityTypeCutlist)
	if err != nil {
		return err
	}
	if err := s.cutlists.Delete(ctx, clID.ID); err != nil {
		return fmt.Errorf("delete cutlist: %w", err)
	}
	return nil
}

// Job status transition actions.
const (
	ActionStart    = "start"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionComplete = "complete"
)

// Transition applies a status-machine action to a job. Illegal transitions
// return a ConflictError; legal ones persist the job and notify the timer
// change.
func (s *Store) Transition(ctx context.Context, jobID, action string) (*cutlist.Job, error) {
	id, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return nil, err
	}
	j, err := getEntity[cutlist.Job](ctx, s.jobs, id.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var eventType string
	switch action {
	case ActionStart:
		err = j.Start(now)
		eventType = events.TypeJobTimerStarted
	case ActionPause:
		err = j.Pause(now)
		eventType = events.TypeJobTimerStopped
	case ActionResume:
		err = j.Resume(now)
		eventType = events.TypeJobTimerStarted
	case ActionComplete:
		err = j.Complete(now)
		eventType = events.TypeJobTimerStopped
	default:
		return nil, &cutlist.ValidationError{Reason: fmt.Sprintf("unknown job action %q", action)}
	}
	if err != nil {
		return nil, err
	}

	j.UpdatedAt = now
	if err := putEntity(ctx, s.jobs, id.ID, j); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:  eventType,
		JobID: j.ID,
	})
	return j, nil
}

// StartSession opens a viewing-session timer on a job and returns the
// session ID the terminal uses to close it.
func (s *Store) StartSession(ctx context.Context, jobID string) (string, *cutlist.Job, error) {
	id, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return "", nil, err
	}
	j, err := getEntity[cutlist.Job](ctx, s.jobs, id.ID)
	if err != nil {
		return "", nil, err
	}

	sessionID := uuid.New().String()
	now := time.Now()
	j.StartSession(sessionID, now)
	j.UpdatedAt = now
	if err := putEntity(ctx, s.jobs, id.ID, j); err != nil {
		return "", nil, err
	}

	s.notifier.Publish(events.Event{
		Type:      events.TypeJobTimerStarted,
		JobID:     j.ID,
		SessionID: sessionID,
	})
	return sessionID, j, nil
}

// StopSession closes a viewing session, folding its elapsed time into the
// job's total duration.
func (s *Store) StopSession(ctx context.Context, jobID, sessionID string) (*cutlist.Job, error) {
	id, err := parseTypedID(jobID, EntityTypeJob)
	if err != nil {
		return nil, err
	}
	j, err := getEntity[cutlist.Job](ctx, s.jobs, id.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !j.StopSession(sessionID, now) {
		return nil, ErrNotFound
	}
	j.UpdatedAt = now
	if err := putEntity(ctx, s.jobs, id.ID, j); err != nil {
		return nil, err
	}

	s.notifier.Publish(events.Event{
		Type:      events.TypeJobTimerStopped,
		JobID:     j.ID,
		SessionID: sessionID,
	})
	return j, nil
}
