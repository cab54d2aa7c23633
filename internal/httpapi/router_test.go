package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobharvest/internal/analyze"
	"jobharvest/internal/config"
	"jobharvest/internal/domain"
	"jobharvest/internal/events"
	"jobharvest/internal/scrape"
	"jobharvest/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type fixture struct {
	srv      *httptest.Server
	db       *store.DB
	hub      *events.Hub
	tracker  *scrape.Tracker
	release  chan struct{}
	cfgPath  string
	cfgVal   *atomic.Value
	buildErr error
	runs     sync.WaitGroup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:      db,
		hub:     events.NewHub(),
		tracker: &scrape.Tracker{},
		release: make(chan struct{}),
		cfgPath: filepath.Join(dir, "config.yml"),
		cfgVal:  &atomic.Value{},
	}
	cfg := config.Default()
	cfg.Credentials.Account = "me@example.com"
	f.cfgVal.Store(cfg)
	require.NoError(t, config.SaveAtomic(f.cfgPath, cfg))

	h := NewRouter(Deps{
		DB:          db.Pool,
		Hub:         f.hub,
		CfgVal:      f.cfgVal,
		UserCfgPath: f.cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(f.cfgPath) },
		Tracker:     f.tracker,
		Runs:        &f.runs,
		RunScrape: func(ctx context.Context, cfg config.Config) ([]scrape.RunReport, error) {
			<-f.release
			return []scrape.RunReport{{Records: 4, Failures: []domain.ScrapeFailure{{Identifier: "x"}}}}, nil
		},
		BuildDataset: func(ctx context.Context) (analyze.Report, error) {
			if f.buildErr != nil {
				return analyze.Report{}, f.buildErr
			}
			return analyze.Report{Files: 2, Rows: 7}, nil
		},
	})
	f.srv = httptest.NewServer(h)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, reqBody string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(reqBody))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func seedPostings(t *testing.T, db *store.DB) {
	t.Helper()
	mk := func(id, title, country, city string) domain.NormalizedRecord {
		return domain.NormalizedRecord{
			PostingRecord: domain.PostingRecord{ID: id, Title: title, Company: "c", Place: city, PostedSince: "na",
				Level: "Entry level", JobType: "Full-time", JobCategory: "na", Industry: "na", Description: "d"},
			CleanTitle: title, Country: country, City: city, Lang: "en", PostedDate: "na",
		}
	}
	_, err := store.ReplacePostings(context.Background(), db.Pool, []domain.NormalizedRecord{
		mk("1", "data engineer", "NL", "Amsterdam"),
		mk("2", "data engineer", "IR", "Dublin"),
		mk("3", "analyst", "NL", "Utrecht"),
	})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"ledger":{"runs":0,"postings":0}}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRecordsAndStats(t *testing.T) {
	f := newFixture(t)
	seedPostings(t, f.db)

	resp, body := f.do(t, http.MethodGet, "/records?country=NL", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []domain.NormalizedRecord
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "Amsterdam", rows[0].City)

	_, body = f.do(t, http.MethodGet, "/records?clean_title=data+engineer&city=Dublin", "")
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)

	resp, _ = f.do(t, http.MethodGet, "/records?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/stats/titles", "")
	var stats []store.TitleCount
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Len(t, stats, 3)
	assert.Equal(t, 1, stats[0].Count)
}

func TestRunsAndFailures(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.InsertRun(context.Background(), f.db.Pool, store.Run{
		ID: "run-1", Job: "a", Location: "b", StartedAt: now, FinishedAt: now, Records: 1, Failures: 1,
	}, []domain.ScrapeFailure{{Identifier: "9", Reason: "title: missing element"}}))

	_, body := f.do(t, http.MethodGet, "/runs", "")
	var runs []store.Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	resp, body := f.do(t, http.MethodGet, "/runs/run-1/failures", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"identifier":"9","reason":"title: missing element"}]`, string(body))

	resp, body = f.do(t, http.MethodGet, "/runs/nope/failures", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, "not_found", apiErr.Error.Code)
	assert.NotEmpty(t, apiErr.Error.RequestID)
}

func TestScrapeRunRefusesOverlap(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/scrape/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/scrape/run", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, body := f.do(t, http.MethodGet, "/scrape/status", "")
	assert.Contains(t, string(body), `"running":true`)

	close(f.release)
	require.Eventually(t, func() bool { return !f.tracker.Status().Running }, 2*time.Second, 10*time.Millisecond)
	st := f.tracker.Status()
	assert.Equal(t, 4, st.LastRecords)
	assert.Equal(t, 1, st.LastFailed)
	assert.NotEmpty(t, st.LastOkAt)
}

func TestScrapeRunIsCountedUntilDone(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/scrape/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	done := make(chan struct{})
	go func() {
		f.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("wait returned while the run was still going")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after the run finished")
	}
	assert.False(t, f.tracker.Status().Running)
}

func TestScrapeRunAnnouncesRequestID(t *testing.T) {
	f := newFixture(t)
	ch := f.hub.Subscribe()
	defer f.hub.Unsubscribe(ch)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/scrape/run", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))

	select {
	case msg := <-ch:
		e, err := events.Parse(msg)
		require.NoError(t, err)
		assert.Equal(t, "scrape.requested", e.Type)
		assert.Equal(t, "req-42", e.RunID)
	case <-time.After(time.Second):
		t.Fatal("no scrape.requested event")
	}

	close(f.release)
	f.runs.Wait()
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/records", 200, slog.LevelInfo},
		{"/health", 200, slog.LevelDebug},
		{"/events", 200, slog.LevelDebug},
		{"/records", 400, slog.LevelWarn},
		{"/health", 503, slog.LevelError},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.want, accessLevel(r, tt.status), "%s %d", tt.path, tt.status)
	}
}

func TestWriteFailure(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("run x: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{context.Canceled, http.StatusServiceUnavailable, "canceled"},
		{&domain.PersistenceError{Op: "save", Path: "/s/a.csv", Err: errors.New("disk full")}, http.StatusInternalServerError, "persistence_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteFailure(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.status, rec.Code)
		var apiErr APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, tt.code, apiErr.Error.Code)
	}
}

func TestDatasetBuild(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/dataset/build", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep analyze.Report
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, 7, rep.Rows)

	f.buildErr = errors.New("disk full")
	resp, _ = f.do(t, http.MethodPost, "/dataset/build", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestConfigGetPut(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "delay: 1s")

	resp, _ = f.do(t, http.MethodPut, "/config", "scrape:\n  workers: 3\nsearches:\n  - job: analyst\n    location: Zurich\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cur := f.cfgVal.Load().(config.Config)
	assert.Equal(t, 3, cur.Scrape.Workers)
	require.Len(t, cur.Searches, 1)

	resp, body = f.do(t, http.MethodPut, "/config", "scrape:\n  workers: 0\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_config")
	assert.Contains(t, string(body), "scrape.workers must be >= 1")

	resp, _ = f.do(t, http.MethodPut, "/config", "scrape: [")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/config/validate", "")
	assert.Contains(t, string(body), `"errors"`)
}

func TestSecretsLogin(t *testing.T) {
	keyring.MockInit()
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/secrets/login", `{"password":"hunter2"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/secrets/login", `{"password":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotFoundAndMethod(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")

	resp, _ = f.do(t, http.MethodDelete, "/records", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}

	ping, err := events.Parse(next())
	require.NoError(t, err)
	assert.Equal(t, "ping", ping.Type)

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	f.hub.Emit("run-9", "scrape.finished", map[string]int{"records": 2})
	e, err := events.Parse(next())
	require.NoError(t, err)
	assert.Equal(t, "scrape.finished", e.Type)
	assert.Equal(t, "run-9", e.RunID)
}
