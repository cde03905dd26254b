package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/lock"
	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/progress"
	"github.com/saint0x/ggchangelog/pkg/server"
)

// fakeGenerator reports a few steps through the registry and returns a fixed
// changelog.
type fakeGenerator struct {
	reg *progress.Registry
	err error
}

func (g *fakeGenerator) Generate(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	rep := progress.NewReporter(g.reg, req.Key())
	rep.Report(5, "Fetching repository information...")
	rep.Report(50, "Processing commits (1-1 of 1)...")
	if g.err != nil {
		rep.Fail(g.err)
		return nil, g.err
	}
	cl := changelog.Empty(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	cl.Section(changelog.BugFixes).Changes = []changelog.Entry{{Title: "Fix pagination", PRNumber: 9}}
	rep.Report(100, "Changelog generated successfully!")
	return &pipeline.Result{
		Repository: &models.Repository{ID: 1, Owner: req.Owner, Name: req.Repo},
		Changelog:  cl,
		Stats:      pipeline.Stats{Commits: 1, Changes: 1, Entries: 1},
	}, nil
}

type emptyStore struct{}

func (emptyStore) ListRepositories(context.Context) ([]models.Repository, error) {
	return []models.Repository{{ID: 1, Owner: "acme", Name: "widgets"}}, nil
}

func (emptyStore) GetRepository(_ context.Context, id uint) (*models.Repository, error) {
	return &models.Repository{ID: id, Owner: "acme", Name: "widgets"}, nil
}

func (emptyStore) ListCommits(context.Context, uint, int, int) ([]models.Commit, error) {
	return nil, nil
}

func (emptyStore) CountCommits(context.Context, uint) (int64, error) { return 0, nil }

func (emptyStore) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T, genErr error) *httptest.Server {
	t.Helper()
	logger := log.NewWithWriter(io.Discard, false)
	reg := progress.NewRegistry(logger, 10*time.Millisecond)
	srv, err := server.New(logger, &fakeGenerator{reg: reg, err: genErr}, emptyStore{}, reg, server.Config{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		reg.Close()
		ts.Close()
	})
	return ts
}

// generateWithProgress subscribes, then generates, the way the CLI does.
func generateWithProgress(t *testing.T, c *Client, req GenerateRequest) ([]progress.Event, *GenerateResponse, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		events []progress.Event
		wg     sync.WaitGroup
	)
	ready := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Progress(ctx, req.Owner, req.Repo, func() { close(ready) }, func(ev progress.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})
	}()
	<-ready

	resp, err := c.Generate(ctx, req)
	wg.Wait()
	return events, resp, err
}

func TestGenerateWithProgress(t *testing.T) {
	ts := newTestServer(t, nil)
	c := New(ts.URL, nil)

	require.NoError(t, c.Health(context.Background()))

	events, resp, err := generateWithProgress(t, c, GenerateRequest{Owner: "acme", Repo: "widgets"})
	require.NoError(t, err)
	require.NotNil(t, resp.Changelog)
	assert.Equal(t, 1, resp.Changelog.EntryCount())
	assert.Equal(t, 1, resp.Stats.Commits)

	require.Len(t, events, 3)
	assert.Equal(t, 5, events[0].Progress)
	assert.Equal(t, 50, events[1].Progress)
	assert.Equal(t, progress.Event{Progress: 100, Step: "Changelog generated successfully!"}, events[2])
}

func TestGenerateFailureEndsStream(t *testing.T) {
	ts := newTestServer(t, lock.ErrLocked)
	c := New(ts.URL, nil)

	events, _, err := generateWithProgress(t, c, GenerateRequest{Owner: "acme", Repo: "widgets"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.NotEmpty(t, se.Message)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.NotEmpty(t, last.Error)
}

func TestGenerateBadRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	c := New(ts.URL, nil)

	_, err := c.Generate(context.Background(), GenerateRequest{Owner: "acme", Repo: "widgets", StartDate: "2024-06-02", EndDate: "2024-06-01"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestRepositories(t *testing.T) {
	ts := newTestServer(t, nil)
	c := New(ts.URL+"/api/", nil)

	repos, err := c.Repositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "widgets", repos[0].Name)

	repo, err := c.Repository(context.Background(), 4)
	require.NoError(t, err)
	assert.EqualValues(t, 4, repo.ID)
}

func TestHealthUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := New(ts.URL, nil).Health(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "down", se.Message)
}
