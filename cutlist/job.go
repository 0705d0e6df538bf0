package cutlist

import "time"

// JobStatus is the lifecycle state of a job on the shop floor.
type JobStatus string

const (
	// JobWaiting is the initial state before cutting begins.
	JobWaiting JobStatus = "waiting"
	// JobInProgress means the job is actively being worked and timed.
	JobInProgress JobStatus = "in_progress"
	// JobPaused means work is suspended with the timer stopped.
	JobPaused JobStatus = "paused"
	// JobDone is terminal; no transition leaves it.
	JobDone JobStatus = "done"
)

// Job is a shop order. It owns an ordered collection of cutlists (persisted
// separately) and carries the status machine plus the accumulated work
// duration across start/stop timer cycles and viewing sessions.
type Job struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Customer string    `json:"customer,omitempty"`
	Status   JobStatus `json:"status"`

	// TotalDurationSeconds accumulates elapsed seconds each time the
	// status timer or a viewing session stops.
	TotalDurationSeconds int64 `json:"total_duration_seconds"`

	// TimerStartedAt is set while the job status timer is running.
	TimerStartedAt *time.Time `json:"timer_started_at,omitempty"`

	// OpenSessions maps session ID to start time for viewing-session
	// timers. These run independently of the status machine.
	OpenSessions map[string]time.Time `json:"open_sessions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cutlist is an ordered group of materials within a job.
type Cutlist struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transitions are strictly validated: repeating start on a running job, or
// any other move outside the waiting → in_progress ⇄ paused → done machine,
// returns a ConflictError rather than being silently accepted.

// Start moves a waiting job into in_progress and starts the timer.
func (j *Job) Start(now time.Time) error {
	if j.Status != JobWaiting {
		return &ConflictError{From: j.Status, Action: "start"}
	}
	j.Status = JobInProgress
	j.TimerStartedAt = &now
	return nil
}

// Pause suspends an in-progress job, folding the elapsed time into the
// accumulated duration.
func (j *Job) Pause(now time.Time) error {
	if j.Status != JobInProgress {
		return &ConflictError{From: j.Status, Action: "pause"}
	}
	j.stopTimer(now)
	j.Status = JobPaused
	return nil
}

// Resume restarts the timer on a paused job.
func (j *Job) Resume(now time.Time) error {
	if j.Status != JobPaused {
		return &ConflictError{From: j.Status, Action: "resume"}
	}
	j.Status = JobInProgress
	j.TimerStartedAt = &now
	return nil
}

// Complete finishes an in-progress job. Done is terminal.
func (j *Job) Complete(now time.Time) error {
	if j.Status != JobInProgress {
		return &ConflictError{From: j.Status, Action: "complete"}
	}
	j.stopTimer(now)
	j.Status = JobDone
	return nil
}

func (j *Job) stopTimer(now time.Time) {
	if j.TimerStartedAt == nil {
		return
	}
	elapsed := int64(now.Sub(*j.TimerStartedAt).Seconds())
	if elapsed > 0 {
		j.TotalDurationSeconds += elapsed
	}
	j.TimerStartedAt = nil
}

// StartSession records a viewing-session timer. Sessions are independent of
// the status machine: a terminal showing the job detail view keeps one open
// and its elapsed time also feeds the total duration.
func (j *Job) StartSession(sessionID string, now time.Time) {
	if j.OpenSessions == nil {
		j.OpenSessions = make(map[string]time.Time)
	}
	j.OpenSessions[sessionID] = now
}

// StopSession closes a viewing session, adding its elapsed seconds to the
// total duration. Returns false for an unknown session ID.
func (j *Job) StopSession(sessionID string, now time.Time) bool {
	started, ok := j.OpenSessions[sessionID]
	if !ok {
		return false
	}
	delete(j.OpenSessions, sessionID)
	elapsed := int64(now.Sub(started).Seconds())
	if elapsed > 0 {
		j.TotalDurationSeconds += elapsed
	}
	return true
}
