// Package ai turns ingested commits into changelog sections through two
// chat-completion calls: a classifier that keeps the customer-facing changes
// and a formatter that narrates them.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/openai"
	"github.com/saint0x/ggchangelog/pkg/retry"
)

// ChatClient is the part of the OpenAI client the generator needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}

// Config tunes batching and the model call.
type Config struct {
	Model             string
	Temperature       float64
	ClassifyBatchSize int
	FormatBatchSize   int
	// Concurrency bounds the number of in-flight model calls.
	Concurrency int
	Retry       retry.Policy
	PromptsFile string
}

// Generator handles AI-powered changelog generation
type Generator struct {
	logger   *log.Logger
	client   ChatClient
	cfg      Config
	prompts  Prompts
	validate *validator.Validate
	now      func() time.Time
}

// New creates a new Generator instance
func New(logger *log.Logger, client ChatClient, cfg Config) *Generator {
	if cfg.ClassifyBatchSize <= 0 {
		cfg.ClassifyBatchSize = 20
	}
	if cfg.FormatBatchSize <= 0 {
		cfg.FormatBatchSize = 40
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	g := &Generator{
		logger:   logger,
		client:   client,
		cfg:      cfg,
		prompts:  DefaultPrompts(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}

	if cfg.PromptsFile != "" {
		if err := loadPrompts(cfg.PromptsFile, &g.prompts); err != nil {
			logger.Warning("Failed to load prompts, using defaults: %v", err)
		}
	}

	return g
}

// complete sends one system/user pair, retrying only on rate limits.
func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	temperature := g.cfg.Temperature
	req := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    &temperature,
		ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
	}

	var content string
	err := retry.Do(ctx, g.cfg.Retry, openai.IsRateLimited, func(ctx context.Context) error {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if openai.IsRateLimited(err) {
				g.logger.Warning("Model rate limited, backing off")
			}
			return err
		}
		content = resp.Content()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to call model: %w", err)
	}
	return content, nil
}

// Candidates groups enriched commits into classifier input: commits of the
// same pull request form one change, other commits stand alone. Groups are
// ordered newest first.
func Candidates(commits []models.Commit) []changelog.ClassifiedChange {
	byPR := make(map[int]int)
	var out []changelog.ClassifiedChange

	for _, c := range commits {
		ref := changelog.CommitRef{
			SHA:     c.SHA,
			Message: c.Message,
			Date:    c.Date,
		}
		for _, f := range c.Files {
			ref.Files = append(ref.Files, changelog.FileRef{Filename: f.Filename, Status: f.Status, Changes: f.Changes})
		}

		if c.PR != nil && c.PR.Number > 0 {
			if i, ok := byPR[c.PR.Number]; ok {
				out[i].Commits = append(out[i].Commits, ref)
				continue
			}
			byPR[c.PR.Number] = len(out)
		}

		merged := c.MergedAt()
		change := changelog.ClassifiedChange{
			BranchName: c.BranchName,
			MergedAt:   &merged,
			Commits:    []changelog.CommitRef{ref},
		}
		if c.PR != nil {
			change.PRNumber = c.PR.Number
			change.PRURL = c.PR.URL
			change.PRTitle = c.PR.Title
			change.PRDescription = c.PR.Body
		}
		out = append(out, change)
	}

	changelog.SortChangesByMergedAt(out)
	return out
}

// FilterChanges asks the model which changes of one batch are customer
// facing. A malformed answer returns ErrSchema.
func (g *Generator) FilterChanges(ctx context.Context, batch []changelog.ClassifiedChange) ([]changelog.ClassifiedChange, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}

	content, err := g.complete(ctx, g.prompts.Classify, string(payload))
	if err != nil {
		return nil, err
	}

	var resp classifyResponse
	if err := decode(g.validate, content, &resp); err != nil {
		g.logger.Error("Classifier returned invalid output: %v", err)
		g.logger.Debug("Classifier payload: %s", content)
		return nil, err
	}

	backfillChanges(resp.APIChanges, batch)
	return resp.APIChanges, nil
}

// Classify filters the customer-facing changes out of ingested commits.
// Batches run concurrently. A batch with malformed output contributes no
// changes. Any other model failure aborts.
func (g *Generator) Classify(ctx context.Context, commits []models.Commit) ([]changelog.ClassifiedChange, error) {
	candidates := Candidates(commits)
	batches := changelog.Chunk(candidates, g.cfg.ClassifyBatchSize)
	if len(batches) == 0 {
		return nil, nil
	}

	results := make([][]changelog.ClassifiedChange, len(batches))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		eg.Go(func() error {
			changes, err := g.FilterChanges(ctx, batch)
			if errors.Is(err, ErrSchema) {
				g.logger.Warning("Skipping classifier batch %d/%d", i+1, len(batches))
				return nil
			}
			if err != nil {
				return fmt.Errorf("classifier batch %d: %w", i+1, err)
			}
			results[i] = changes
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []changelog.ClassifiedChange
	for _, r := range results {
		all = append(all, r...)
	}
	changelog.SortChangesByMergedAt(all)
	all = changelog.DedupeChanges(all)

	g.logger.Debug("Classified %d of %d changes as customer-facing", len(all), len(candidates))
	return all, nil
}

// FormatChangelog narrates one batch of changes into sections. A malformed
// answer returns ErrSchema.
func (g *Generator) FormatChangelog(ctx context.Context, batch []changelog.ClassifiedChange) ([]changelog.Section, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}

	content, err := g.complete(ctx, g.prompts.Format, string(payload))
	if err != nil {
		return nil, err
	}

	var resp formatResponse
	if err := decode(g.validate, content, &resp); err != nil {
		g.logger.Error("Formatter returned invalid output: %v", err)
		g.logger.Debug("Formatter payload: %s", content)
		return nil, err
	}

	sections := make([]changelog.Section, 0, len(resp.Sections))
	for _, s := range resp.Sections {
		section := changelog.Section{Type: changelog.ParseCategory(s.Type), Changes: make([]changelog.Entry, 0, len(s.Changes))}
		for _, e := range s.Changes {
			entry := changelog.Entry{
				Title:          strings.TrimSpace(e.Title),
				Description:    strings.TrimSpace(e.Description),
				ActionRequired: strings.TrimSpace(e.ActionRequired),
				MergedAt:       e.MergedAt,
				PRNumber:       e.PRNumber,
				Files:          e.Files,
			}
			backfillEntry(&entry, batch)
			section.Changes = append(section.Changes, entry)
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// Format turns classified changes into a changelog with the five sections.
// Batches run concurrently and their sections are concatenated per category
// in batch order, then re-sorted newest first.
func (g *Generator) Format(ctx context.Context, changes []changelog.ClassifiedChange) (*changelog.Changelog, error) {
	batches := changelog.Chunk(changes, g.cfg.FormatBatchSize)
	results := make([][]changelog.Section, len(batches))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		eg.Go(func() error {
			sections, err := g.FormatChangelog(ctx, batch)
			if errors.Is(err, ErrSchema) {
				g.logger.Warning("Skipping formatter batch %d/%d", i+1, len(batches))
				return nil
			}
			if err != nil {
				return fmt.Errorf("formatter batch %d: %w", i+1, err)
			}
			results[i] = sections
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	cl := &changelog.Changelog{LastUpdated: g.now()}
	for _, sections := range results {
		cl.Sections = append(cl.Sections, sections...)
	}
	cl = changelog.Normalize(cl)
	for i := range cl.Sections {
		changelog.SortEntries(cl.Sections[i].Changes)
	}
	return cl, nil
}

// backfillChanges restores PR linkage the model dropped, using the commit
// SHAs of the batch it was given.
func backfillChanges(changes []changelog.ClassifiedChange, batch []changelog.ClassifiedChange) {
	bySHA := make(map[string]*changelog.ClassifiedChange)
	for i := range batch {
		for _, c := range batch[i].Commits {
			bySHA[c.SHA] = &batch[i]
		}
	}

	for i := range changes {
		var source *changelog.ClassifiedChange
		for _, c := range changes[i].Commits {
			if s, ok := bySHA[c.SHA]; ok {
				source = s
				break
			}
		}
		if source == nil {
			continue
		}
		if changes[i].PRNumber == 0 {
			changes[i].PRNumber = source.PRNumber
		}
		if changes[i].PRURL == "" {
			changes[i].PRURL = source.PRURL
		}
		if changes[i].MergedAt == nil {
			changes[i].MergedAt = source.MergedAt
		}
		if changes[i].BranchName == "" {
			changes[i].BranchName = source.BranchName
		}
	}
}

// backfillEntry links an entry back to the change it describes, by PR number
// or else by title, and fills the PR URL, merge time and files.
func backfillEntry(e *changelog.Entry, batch []changelog.ClassifiedChange) {
	var source *changelog.ClassifiedChange
	for i := range batch {
		if e.PRNumber > 0 && batch[i].PRNumber == e.PRNumber {
			source = &batch[i]
			break
		}
	}
	if source == nil && e.PRNumber == 0 {
		title := strings.ToLower(e.Title)
		for i := range batch {
			if t := strings.ToLower(batch[i].Title()); t != "" && t == title {
				source = &batch[i]
				break
			}
		}
	}
	if source == nil {
		return
	}

	if e.PRNumber == 0 {
		e.PRNumber = source.PRNumber
	}
	if e.PRURL == "" {
		e.PRURL = source.PRURL
	}
	if e.MergedAt == nil {
		e.MergedAt = source.MergedAt
	}
	if len(e.Files) == 0 {
		e.Files = source.Files()
	}
	sort.Strings(e.Files)
}
