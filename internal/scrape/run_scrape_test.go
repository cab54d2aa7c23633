package scrape

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/linkedin"
	"jobharvest/internal/snapshot"
	"jobharvest/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// siteBrowser serves two listing pages and a posting page per id.
type siteBrowser struct {
	pages map[int][]string
	bad   map[string]bool
}

func (b siteBrowser) RenderListingPage(_ context.Context, _, _ string, page int) (string, error) {
	var sb strings.Builder
	sb.WriteString("<html><body><ul>")
	for _, id := range b.pages[page] {
		fmt.Fprintf(&sb, `<li><a href="https://www.linkedin.com/jobs/view/%s?refId=abc">x</a></li>`, id)
	}
	sb.WriteString("</ul></body></html>")
	return sb.String(), nil
}

func (b siteBrowser) FetchPage(_ context.Context, url string) (string, error) {
	id := url[strings.LastIndex(url, "/")+1:]
	if b.bad[id] {
		return "<html><body>gone</body></html>", nil
	}
	return fmt.Sprintf(`<html><head><title>Acme hiring Engineer %[1]s in Amsterdam, Netherlands | LinkedIn</title></head><body>
<h1>Engineer %[1]s</h1>
<img class="artdeco-entity-image" alt="Acme">
<span class="posted-time-ago__text"> 2 days ago </span>
<ul><li class="description__job-criteria-item"><span class="description__job-criteria-text">Full-time</span></li></ul>
<div class="show-more-less-html__markup"><p>Build things.</p></div>
</body></html>`, id), nil
}

type recPublisher struct {
	mu   sync.Mutex
	evts []string
}

func (p *recPublisher) Publish(evt string) {
	p.mu.Lock()
	p.evts = append(p.evts, evt)
	p.mu.Unlock()
}

func (p *recPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.evts {
		if strings.Contains(e, `"type":"`+typ+`"`) {
			n++
		}
	}
	return n
}

type recReporter struct{ got []RunReport }

func (r *recReporter) Report(_ context.Context, rep RunReport) error {
	r.got = append(r.got, rep)
	return errors.New("telegram down")
}

func TestRunnerRun(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	pub := &recPublisher{}
	reporter := &recReporter{}
	r := &Runner{
		Browser: siteBrowser{
			pages: map[int][]string{0: {"1-a", "2-b"}, 1: {"2-b", "3-c"}},
			bad:   map[string]bool{"3-c": true},
		},
		Snapshots: snapshot.New(filepath.Join(dir, "snaps"), nil),
		DB:        db.Pool,
		Events:    pub,
		Reporter:  reporter,
		Discovery: linkedin.DiscoveryConfig{},
		Batch:     BatchConfig{},
	}

	rep, err := r.Run(context.Background(), Search{Job: "engineer", Location: "Netherlands", Pages: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 3, rep.Discovered)
	assert.Equal(t, 2, rep.Records)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "3-c", rep.Failures[0].Identifier)
	assert.Equal(t, rep.Discovered, rep.Records+len(rep.Failures))
	assert.Equal(t, "engineer_netherlands_2.csv", filepath.Base(rep.Snapshot))

	saved, err := snapshot.Load(rep.Snapshot)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Acme", saved[0].Company)
	assert.Equal(t, "Amsterdam, Netherlands", saved[0].Place)

	runs, err := store.ListRuns(context.Background(), db.Pool, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Failures)

	fails, err := store.ListFailures(context.Background(), db.Pool, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Failures, fails)

	assert.Equal(t, 1, pub.count("scrape.started"))
	assert.Equal(t, 3, pub.count("scrape.item"))
	assert.Equal(t, 1, pub.count("scrape.finished"))
	require.Len(t, reporter.got, 1)
	assert.Equal(t, rep.ID, reporter.got[0].ID)
}

func TestRunnerCanceledStillRecords(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	r := &Runner{
		Browser:   siteBrowser{pages: map[int][]string{0: {"1-a"}}},
		Snapshots: snapshot.New(filepath.Join(dir, "snaps"), nil),
		DB:        db.Pool,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := r.Run(ctx, Search{Job: "x", Location: "y", Pages: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Records)
	assert.Empty(t, rep.Snapshot)
	assert.NotEmpty(t, rep.Error)

	runs, err := store.ListRuns(context.Background(), db.Pool, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunnerRunAll(t *testing.T) {
	r := &Runner{
		Browser:   siteBrowser{pages: map[int][]string{0: {"1-a"}}},
		Snapshots: snapshot.New(t.TempDir(), nil),
	}
	reps, err := r.RunAll(context.Background(), []Search{
		{Job: "a", Location: "x", Pages: 1},
		{Job: "b", Location: "x", Pages: 1},
	})
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, 1, reps[1].Records)
}

func TestTracker(t *testing.T) {
	var tr Tracker
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

	require.True(t, tr.Begin(now))
	assert.False(t, tr.Begin(now))
	assert.True(t, tr.Status().Running)

	tr.End(now, []RunReport{{Records: 2, Failures: []domain.ScrapeFailure{{}}}, {Records: 1}}, nil)
	st := tr.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.LastRecords)
	assert.Equal(t, 1, st.LastFailed)
	assert.Equal(t, now.Format(time.RFC3339), st.LastOkAt)

	require.True(t, tr.Begin(now.Add(time.Hour)))
	tr.End(now.Add(time.Hour), nil, errors.New("boom"))
	st = tr.Status()
	assert.Equal(t, "boom", st.LastError)
	assert.Equal(t, now.Format(time.RFC3339), st.LastOkAt)
}
