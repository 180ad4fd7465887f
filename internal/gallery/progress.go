package gallery

import "sync"

// Progress aggregates every in-flight upload of a Manager.
type Progress struct {
	TotalBytes       int64 `json:"total_bytes"`
	TransferredBytes int64 `json:"transferred_bytes"`
	ActiveJobs       int   `json:"active_jobs"`
}

// Percent returns the transferred share in [0,100].
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := float64(p.TransferredBytes) / float64(p.TotalBytes) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

type progressTracker struct {
	mu sync.Mutex
	p  Progress
}

func (t *progressTracker) begin(total int64) {
	t.mu.Lock()
	t.p.ActiveJobs++
	t.p.TotalBytes += total
	t.mu.Unlock()
}

func (t *progressTracker) grow(total int64) {
	t.mu.Lock()
	t.p.TotalBytes += total
	t.mu.Unlock()
}

func (t *progressTracker) advance(n int64) {
	t.mu.Lock()
	t.p.TransferredBytes += n
	t.mu.Unlock()
}

// end closes a job; totals reset once nothing is in flight.
func (t *progressTracker) end() {
	t.mu.Lock()
	if t.p.ActiveJobs > 0 {
		t.p.ActiveJobs--
	}
	if t.p.ActiveJobs == 0 {
		t.p = Progress{}
	}
	t.mu.Unlock()
}

func (t *progressTracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}
