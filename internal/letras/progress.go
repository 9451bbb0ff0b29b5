package letras

import "sync"

// Progress tracks the state of the running (or last finished) import.
// It is shared between the import goroutine and the admin progress
// endpoint, and doubles as the mutual-exclusion flag for the importer:
// only one of {metadata import, enrichment} runs at a time.
type Progress struct {
	mu sync.Mutex

	active     bool
	phase      string
	page       int
	totalPages int
	imported   int
	updated    int
	skipped    int
	errors     int
	message    string
}

// Snapshot is a copy of the progress state safe to hand to a handler.
type Snapshot struct {
	Active     bool   `json:"active"`
	Phase      string `json:"phase"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Imported   int    `json:"imported"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
	Message    string `json:"message"`
}

// begin claims the progress for a new run. Returns false when another
// run already holds it; the existing counters are left untouched.
func (p *Progress) begin(phase string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return false
	}
	p.active = true
	p.phase = phase
	p.page = 0
	p.totalPages = 0
	p.imported = 0
	p.updated = 0
	p.skipped = 0
	p.errors = 0
	p.message = ""
	return true
}

// finish releases the run and records a closing message.
func (p *Progress) finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.message = message
}

func (p *Progress) setPage(page, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
	if totalPages > 0 {
		p.totalPages = totalPages
	}
}

func (p *Progress) add(imported, updated, skipped, errors int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imported += imported
	p.updated += updated
	p.skipped += skipped
	p.errors += errors
}

// SetMessage records a status line without ending the run.
func (p *Progress) SetMessage(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = message
}

// Snapshot returns a consistent copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Active:     p.active,
		Phase:      p.phase,
		Page:       p.page,
		TotalPages: p.totalPages,
		Imported:   p.imported,
		Updated:    p.updated,
		Skipped:    p.skipped,
		Errors:     p.errors,
		Message:    p.message,
	}
}
