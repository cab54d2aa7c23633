package scrape

import (
	"sync"
	"time"

	"jobharvest/internal/scrape/types"
)

// Tracker admits one scrape at a time and remembers how the last one went.
type Tracker struct {
	mu sync.Mutex
	st types.ScrapeStatus
}

// Begin marks a scrape as running. It returns false when one already is.
func (t *Tracker) Begin(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.Running {
		return false
	}
	t.st.Running = true
	t.st.LastRunAt = now.Format(time.RFC3339)
	t.st.LastError = ""
	return true
}

func (t *Tracker) End(now time.Time, reports []RunReport, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Running = false
	t.st.LastRecords, t.st.LastFailed = 0, 0
	for _, r := range reports {
		t.st.LastRecords += r.Records
		t.st.LastFailed += len(r.Failures)
	}
	if err != nil {
		t.st.LastError = err.Error()
		return
	}
	t.st.LastError = ""
	t.st.LastOkAt = now.Format(time.RFC3339)
}

func (t *Tracker) Status() types.ScrapeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}
