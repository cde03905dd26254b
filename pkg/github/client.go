package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/retry"
)

// perPage is the page size of the commit listing. A shorter page ends it.
const perPage = 100

// Config configures the GitHub client
type Config struct {
	Token string
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	Retry             retry.Policy
	HTTPClient        *http.Client
}

// Client handles GitHub operations
type Client struct {
	client  *github.Client
	logger  *log.Logger
	limiter *rate.Limiter
	retry   retry.Policy
}

// New creates a new GitHub client
func New(logger *log.Logger, cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN not set: %w", ErrAuth)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(ctx, ts)

	gh := github.NewClient(tc)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		gh.BaseURL = u
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		client:  gh,
		logger:  logger,
		limiter: limiter,
		retry:   cfg.Retry,
	}, nil
}

// call runs one API request through the limiter and the retry policy.
func (c *Client) call(ctx context.Context, what string, fn func(ctx context.Context) (*github.Response, error)) error {
	attempt := 0
	return retry.Do(ctx, c.retry, Retryable, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return limiterError(ctx, what, err)
		}
		resp, err := fn(ctx)
		if err == nil {
			return nil
		}
		err = classify(what, resp, err)
		if Retryable(err) {
			c.logger.Debug("%s failed (attempt %d): %v", what, attempt, err)
		}
		return err
	})
}

// limiterError reports a failed limiter wait as the context error it stands
// for. Wait refuses early when the next token lies past the deadline, before
// ctx itself is done.
func limiterError(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%s: %v: %w", what, err, context.DeadlineExceeded)
	}
	return err
}

// GetRepositoryInfo fetches the repository metadata.
func (c *Client) GetRepositoryInfo(ctx context.Context, owner, repo string) (*models.RepositoryInfo, error) {
	var r *github.Repository
	err := c.call(ctx, "get repository", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.client.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}

	info := &models.RepositoryInfo{
		Owner:           r.GetOwner().GetLogin(),
		OwnerAvatarURL:  r.GetOwner().GetAvatarURL(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		HTMLURL:         r.GetHTMLURL(),
		DefaultBranch:   r.GetDefaultBranch(),
		Description:     r.GetDescription(),
		StargazersCount: r.GetStargazersCount(),
		Language:        r.GetLanguage(),
		Topics:          r.Topics,
	}
	if info.Owner == "" {
		info.Owner = owner
	}
	if info.Name == "" {
		info.Name = repo
	}
	if l := r.GetLicense(); l != nil {
		info.License = models.License{Name: l.GetName(), URL: l.GetURL()}
	}
	if r.UpdatedAt != nil {
		t := r.UpdatedAt.Time
		info.UpdatedAt = &t
	}
	return info, nil
}

// CommitPager walks the commit listing of a window page by page.
type CommitPager struct {
	c        *Client
	owner    string
	repo     string
	opts     github.CommitsListOptions
	maxPages int
	pages    int
	done     bool
}

// Commits returns a pager over commits in [since, until]. maxPages <= 0
// means no page cap.
func (c *Client) Commits(owner, repo string, since, until time.Time, maxPages int) *CommitPager {
	p := &CommitPager{
		c:        c,
		owner:    owner,
		repo:     repo,
		maxPages: maxPages,
		opts: github.CommitsListOptions{
			Since: since,
			Until: until,
		},
	}
	p.Reset()
	return p
}

// Reset rewinds the pager to the first page.
func (p *CommitPager) Reset() {
	p.opts.ListOptions = github.ListOptions{Page: 1, PerPage: perPage}
	p.pages = 0
	p.done = false
}

// Done reports whether the listing is exhausted.
func (p *CommitPager) Done() bool {
	return p.done
}

// Next fetches the next page. It returns nil once the listing is done.
func (p *CommitPager) Next(ctx context.Context) ([]models.CommitSummary, error) {
	if p.done {
		return nil, nil
	}

	var page []*github.RepositoryCommit
	err := p.c.call(ctx, "list commits", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		page, resp, err = p.c.client.Repositories.ListCommits(ctx, p.owner, p.repo, &p.opts)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commits for %s/%s: %w", p.owner, p.repo, err)
	}

	p.pages++
	if len(page) < perPage {
		p.done = true
	}
	if p.maxPages > 0 && p.pages >= p.maxPages {
		p.done = true
	}
	p.opts.Page++

	out := make([]models.CommitSummary, 0, len(page))
	for _, rc := range page {
		commit := rc.GetCommit()
		author := commit.GetAuthor().GetName()
		if author == "" {
			author = rc.GetAuthor().GetLogin()
		}
		out = append(out, models.CommitSummary{
			SHA:     rc.GetSHA(),
			Message: commit.GetMessage(),
			Author:  author,
			Date:    commit.GetAuthor().GetDate().Time,
		})
	}
	return out, nil
}

// ListCommits lists every commit in [since, until].
func (c *Client) ListCommits(ctx context.Context, owner, repo string, since, until time.Time, maxPages int) ([]models.CommitSummary, error) {
	pager := c.Commits(owner, repo, since, until, maxPages)
	var all []models.CommitSummary
	for !pager.Done() {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	c.logger.Debug("Listed %d commits for %s/%s", len(all), owner, repo)
	return all, nil
}

// GetPRForCommit returns the first pull request associated with sha, or nil
// when there is none.
func (c *Client) GetPRForCommit(ctx context.Context, owner, repo, sha string) (*models.PullRequest, error) {
	var prs []*github.PullRequest
	err := c.call(ctx, "list pull requests for commit", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		prs, resp, err = c.client.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, &github.ListOptions{})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get PR for commit %s: %w", shortSHA(sha), err)
	}
	if len(prs) == 0 {
		return nil, nil
	}

	pr := prs[0]
	out := &models.PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
		Author: pr.GetUser().GetLogin(),
		URL:    pr.GetHTMLURL(),
		Branch: pr.GetHead().GetRef(),
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out, nil
}

// GetCommitDetail fetches the file-level detail of one commit.
func (c *Client) GetCommitDetail(ctx context.Context, owner, repo, sha string) (*models.CommitDetail, error) {
	var rc *github.RepositoryCommit
	err := c.call(ctx, "get commit", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		rc, resp, err = c.client.Repositories.GetCommit(ctx, owner, repo, sha, &github.ListOptions{})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", shortSHA(sha), err)
	}

	detail := &models.CommitDetail{
		Additions: rc.GetStats().GetAdditions(),
		Deletions: rc.GetStats().GetDeletions(),
		Total:     rc.GetStats().GetTotal(),
	}
	for _, f := range rc.Files {
		detail.Files = append(detail.Files, models.FileChange{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Changes:   f.GetChanges(),
		})
	}
	return detail, nil
}

// ParseRepoURL parses a GitHub URL, SSH remote or owner/repo pair into owner
// and repo.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	repoURL = strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
	repoURL = strings.TrimSuffix(repoURL, ".git")

	// Handle SSH URLs (git@github.com:owner/repo)
	if strings.HasPrefix(repoURL, "git@github.com:") {
		return splitPair(strings.TrimPrefix(repoURL, "git@github.com:"))
	}

	// Bare owner/repo
	if !strings.Contains(repoURL, "://") {
		return splitPair(repoURL)
	}

	// Handle HTTPS URLs
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	return splitPair(strings.Trim(u.Path, "/"))
}

func splitPair(s string) (string, string, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format %q: want owner/repo", s)
	}
	return parts[0], parts[1], nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
