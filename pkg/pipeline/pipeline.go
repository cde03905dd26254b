// Package pipeline runs one changelog generation: repository metadata,
// commit ingestion, classification, formatting and the merge into the stored
// changelog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/lock"
	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/progress"
)

var (
	// ErrInvalidRequest means owner or repo is missing.
	ErrInvalidRequest = errors.New("owner and repo are required")
	// ErrInvalidWindow means since is after until.
	ErrInvalidWindow = errors.New("since must not be after until")
)

// HostClient is the source-control host.
type HostClient interface {
	GetRepositoryInfo(ctx context.Context, owner, repo string) (*models.RepositoryInfo, error)
	ListCommits(ctx context.Context, owner, repo string, since, until time.Time, maxPages int) ([]models.CommitSummary, error)
	GetPRForCommit(ctx context.Context, owner, repo, sha string) (*models.PullRequest, error)
	GetCommitDetail(ctx context.Context, owner, repo, sha string) (*models.CommitDetail, error)
}

// Store persists repositories, commits and the changelog.
type Store interface {
	UpsertRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error)
	UpsertCommit(ctx context.Context, commit *models.Commit) error
	SaveChangelog(ctx context.Context, repoID uint, cl *changelog.Changelog, generatedAt time.Time) error
}

// Classifier keeps the customer-facing changes.
type Classifier interface {
	Classify(ctx context.Context, commits []models.Commit) ([]changelog.ClassifiedChange, error)
}

// Formatter narrates classified changes into sections.
type Formatter interface {
	Format(ctx context.Context, changes []changelog.ClassifiedChange) (*changelog.Changelog, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Host       HostClient
	Store      Store
	Classifier Classifier
	Formatter  Formatter
	Locker     lock.Locker
	Progress   progress.Publisher
}

// Config tunes ingestion.
type Config struct {
	ChunkSize     int
	Concurrency   int
	MaxPages      int
	DefaultWindow time.Duration
}

// Request asks for the changelog of Owner/Repo over [Since, Until]. Zero
// times take the default window ending now.
type Request struct {
	Owner string
	Repo  string
	Since time.Time
	Until time.Time
}

// Key is the owner/repo job key. GitHub names are case-insensitive, so the
// key is lower-cased.
func (r Request) Key() string {
	return strings.ToLower(r.Owner + "/" + r.Repo)
}

// Stats summarises one run.
type Stats struct {
	Commits int `json:"commits"`
	Changes int `json:"changes"`
	// Entries added to the stored changelog by this run.
	Entries int `json:"entries"`
}

// Result is the outcome of a successful run.
type Result struct {
	Repository *models.Repository   `json:"repository"`
	Changelog  *changelog.Changelog `json:"changelog"`
	Stats      Stats                `json:"stats"`
}

// Pipeline generates changelogs.
type Pipeline struct {
	logger *log.Logger
	deps   Deps
	cfg    Config
	now    func() time.Time
}

// New creates a Pipeline.
func New(logger *log.Logger, deps Deps, cfg Config) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = 14 * 24 * time.Hour
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemory()
	}
	return &Pipeline{
		logger: logger,
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Prepare trims and lower-cases the names, fills the default window and
// validates it.
func (p *Pipeline) Prepare(req Request) (Request, error) {
	req.Owner = strings.ToLower(strings.TrimSpace(req.Owner))
	req.Repo = strings.ToLower(strings.TrimSpace(req.Repo))
	if req.Owner == "" || req.Repo == "" {
		return req, ErrInvalidRequest
	}

	if req.Until.IsZero() {
		req.Until = p.now()
	}
	if req.Since.IsZero() {
		req.Since = req.Until.Add(-p.cfg.DefaultWindow)
	}
	if req.Since.After(req.Until) {
		return req, fmt.Errorf("%w: %s > %s", ErrInvalidWindow,
			req.Since.Format(time.RFC3339), req.Until.Format(time.RFC3339))
	}
	return req, nil
}

// Generate runs one generation. Requests are validated before anything
// else; a second run for the same repository fails with lock.ErrLocked.
// Failures after the lock is held end the progress stream with an error.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	req, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	key := req.Key()
	unlock, err := p.deps.Locker.TryLock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rep := progress.NewReporter(p.deps.Progress, key)
	res, err := p.run(ctx, req, rep)
	if err != nil {
		p.logger.Error("Changelog generation for %s failed: %v", key, err)
		rep.Fail(err)
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, rep *progress.Reporter) (*Result, error) {
	p.logger.Step("Generating changelog for %s (%s to %s)", req.Key(),
		req.Since.Format("2006-01-02"), req.Until.Format("2006-01-02"))

	rep.Report(5, "Fetching repository info...")
	info, err := p.deps.Host.GetRepositoryInfo(ctx, req.Owner, req.Repo)
	if err != nil {
		return nil, err
	}

	repo, err := p.deps.Store.UpsertRepository(ctx, repositoryFromInfo(req, info))
	if err != nil {
		return nil, err
	}

	rep.Report(10, "Fetching commits...")
	summaries, err := p.deps.Host.ListCommits(ctx, req.Owner, req.Repo, req.Since, req.Until, p.cfg.MaxPages)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Found %d commits in %s", len(summaries), req.Key())

	commits, err := p.ingest(ctx, req, repo, info.DefaultBranch, summaries, rep)
	if err != nil {
		return nil, err
	}

	now := p.now()
	var changes []changelog.ClassifiedChange
	generated := changelog.Empty(now)
	if len(commits) > 0 {
		rep.Report(80, "Analyzing changes...")
		changes, err = p.deps.Classifier.Classify(ctx, commits)
		if err != nil {
			return nil, err
		}

		rep.Report(90, "Generating changelog...")
		if len(changes) > 0 {
			generated, err = p.deps.Formatter.Format(ctx, changes)
			if err != nil {
				return nil, err
			}
		}
	}

	rep.Report(95, "Saving changelog...")
	before := changelog.Normalize(repo.Changelog).EntryCount()
	merged := changelog.Merge(repo.Changelog, generated, now)
	if err := p.deps.Store.SaveChangelog(ctx, repo.ID, merged, now); err != nil {
		return nil, err
	}
	repo.Changelog = merged
	repo.LastGeneratedAt = &now

	stats := Stats{Commits: len(commits), Changes: len(changes), Entries: merged.EntryCount() - before}
	p.logger.Changelog("Changelog for %s updated: %d commits, %d changes, %d entries",
		req.Key(), stats.Commits, stats.Changes, stats.Entries)
	rep.Report(100, "Changelog generated successfully!")

	return &Result{Repository: repo, Changelog: merged, Stats: stats}, nil
}

// ingest enriches and stores commits chunk by chunk. Lookups inside a chunk
// run concurrently. A failed PR or detail lookup degrades that commit; a
// failed store write aborts. Commits come back in listing order whatever the
// chunk size. Past 70 chunks some boundaries share a whole percent; only
// boundaries that raise it are reported.
func (p *Pipeline) ingest(ctx context.Context, req Request, repo *models.Repository, defaultBranch string, summaries []models.CommitSummary, rep *progress.Reporter) ([]models.Commit, error) {
	chunks := changelog.Chunk(summaries, p.cfg.ChunkSize)
	out := make([]models.Commit, len(summaries))

	offset, reported := 0, 10
	for i, chunk := range chunks {
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(p.cfg.Concurrency)
		for j, summary := range chunk {
			idx, summary := offset+j, summary
			eg.Go(func() error {
				commit := p.enrich(gctx, req, repo.ID, defaultBranch, summary)
				if err := p.deps.Store.UpsertCommit(gctx, &commit); err != nil {
					return err
				}
				out[idx] = commit
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		offset += len(chunk)
		percent := 10 + 70*(i+1)/len(chunks)
		if percent <= reported {
			continue
		}
		reported = percent
		rep.Report(float64(percent), fmt.Sprintf("Processing commits (%d-%d of %d)...",
			offset-len(chunk)+1, offset, len(summaries)))
	}
	return out, nil
}

func (p *Pipeline) enrich(ctx context.Context, req Request, repoID uint, defaultBranch string, s models.CommitSummary) models.Commit {
	commit := models.Commit{
		SHA:          s.SHA,
		RepositoryID: repoID,
		Message:      s.Message,
		Author:       s.Author,
		Date:         s.Date,
		BranchName:   defaultBranch,
	}

	pr, err := p.deps.Host.GetPRForCommit(ctx, req.Owner, req.Repo, s.SHA)
	if err != nil {
		p.logger.Warning("PR lookup failed for %s: %v", s.SHA, err)
	} else if pr != nil {
		commit.PR = pr
		if pr.Branch != "" {
			commit.BranchName = pr.Branch
		}
	}

	detail, err := p.deps.Host.GetCommitDetail(ctx, req.Owner, req.Repo, s.SHA)
	if err != nil {
		p.logger.Warning("Commit detail failed for %s: %v", s.SHA, err)
	} else if detail != nil {
		commit.Files = detail.Files
		commit.Additions = detail.Additions
		commit.Deletions = detail.Deletions
	}

	p.logger.Commit("%s %s", shortSHA(s.SHA), firstLine(s.Message))
	return commit
}

// repositoryFromInfo keys the row by the lower-cased request names. The
// host's casing survives in FullName.
func repositoryFromInfo(req Request, info *models.RepositoryInfo) *models.Repository {
	fullName := info.FullName
	if !strings.EqualFold(fullName, req.Key()) {
		fullName = req.Key()
	}
	return &models.Repository{
		Owner:           req.Owner,
		Name:            req.Repo,
		OwnerAvatarURL:  info.OwnerAvatarURL,
		FullName:        fullName,
		HTMLURL:         info.HTMLURL,
		DefaultBranch:   info.DefaultBranch,
		Description:     info.Description,
		StargazersCount: info.StargazersCount,
		Language:        info.Language,
		Topics:          info.Topics,
		License:         info.License,
		HostUpdatedAt:   info.UpdatedAt,
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
