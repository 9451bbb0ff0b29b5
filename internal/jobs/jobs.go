// Package jobs serializes background work per family: at most one
// scrape, one lyrics run, one archive sync and so on at a time,
// whether triggered by an admin or by the scheduler.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when the family's slot is taken.
var ErrAlreadyRunning = errors.New("job already running")

// Family identifies one class of background work.
type Family string

const (
	FamilyScraper     Family = "scraper"
	FamilyLetras      Family = "letras"
	FamilyOdysee      Family = "odysee"
	FamilyChatBot     Family = "chatbot"
	FamilyLiveMonitor Family = "livemonitor"
)

// Run is a held job slot. The job runs under Context and must call
// Done exactly once when it finishes, success or not.
type Run struct {
	ID        string
	StartedAt time.Time

	ctx    context.Context
	family Family
	coord  *Coordinator
}

// Context is cancelled when the family is stopped or the parent ends.
func (r *Run) Context() context.Context {
	return r.ctx
}

// Done releases the family slot.
func (r *Run) Done() {
	r.coord.release(r.family, r.ID)
}

type activeRun struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status describes one family for the admin endpoint.
type Status struct {
	Running    bool       `json:"running"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastEnded  *time.Time `json:"last_ended,omitempty"`
}

// Coordinator hands out per-family run slots.
type Coordinator struct {
	mu     sync.Mutex
	active map[Family]*activeRun
	last   map[Family]Status
}

// New builds an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		active: make(map[Family]*activeRun),
		last:   make(map[Family]Status),
	}
}

// TryStart claims the family's slot. The returned run carries a fresh
// v7 run id and a context derived from parent that Stop cancels.
func (c *Coordinator) TryStart(parent context.Context, family Family) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.active[family]; taken {
		return nil, ErrAlreadyRunning
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	now := time.Now().UTC()
	c.active[family] = &activeRun{id: id.String(), startedAt: now, cancel: cancel}

	return &Run{
		ID:        id.String(),
		StartedAt: now,
		ctx:       ctx,
		family:    family,
		coord:     c,
	}, nil
}

// Stop cancels the family's running job, if any. The slot frees only
// when the job notices the cancellation and calls Done.
func (c *Coordinator) Stop(family Family) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, ok := c.active[family]
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// release frees a slot. Stale releases from an older run are ignored.
func (c *Coordinator) release(family Family, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, ok := c.active[family]
	if !ok || run.id != runID {
		return
	}
	run.cancel()
	delete(c.active, family)

	ended := time.Now().UTC()
	c.last[family] = Status{LastRunID: runID, LastEnded: &ended}
}

// Snapshot reports every known family's state.
func (c *Coordinator) Snapshot() map[Family]Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Family]Status, len(c.active)+len(c.last))
	for family, status := range c.last {
		out[family] = status
	}
	for family, run := range c.active {
		startedAt := run.startedAt
		status := out[family]
		status.Running = true
		status.RunID = run.id
		status.StartedAt = &startedAt
		out[family] = status
	}
	return out
}
