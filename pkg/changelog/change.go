package changelog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FileRef is a file touched by a commit as reported to the classifier.
type FileRef struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Changes  int    `json:"changes"`
}

// CommitRef is one underlying commit of a classified change.
type CommitRef struct {
	SHA     string    `json:"sha" validate:"required"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Files   []FileRef `json:"files"`
}

// ClassifiedChange is a PR or commit group judged customer-facing. It only
// lives between classification and formatting.
type ClassifiedChange struct {
	BranchName     string      `json:"branchName"`
	PRNumber       int         `json:"prNumber,omitempty"`
	PRURL          string      `json:"prUrl,omitempty"`
	PRTitle        string      `json:"prTitle"`
	PRDescription  string      `json:"prDescription"`
	MergedAt       *time.Time  `json:"mergedAt,omitempty"`
	Summary        string      `json:"summary" validate:"required"`
	BreakingChange bool        `json:"breakingChange"`
	Commits        []CommitRef `json:"commits" validate:"required,min=1,dive"`
}

// Title is the PR title, or the first line of the first commit message.
func (c ClassifiedChange) Title() string {
	if t := strings.TrimSpace(c.PRTitle); t != "" {
		return t
	}
	if len(c.Commits) > 0 {
		first, _, _ := strings.Cut(c.Commits[0].Message, "\n")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(c.Summary)
}

// Key identifies a logical change: the PR number when present, else the
// normalised title.
func (c ClassifiedChange) Key() string {
	if c.PRNumber > 0 {
		return fmt.Sprintf("pr:%d", c.PRNumber)
	}
	return "title:" + normalizeTitle(c.Title())
}

// Files lists the distinct filenames touched by the change's commits.
func (c ClassifiedChange) Files() []string {
	seen := make(map[string]struct{})
	var files []string
	for _, commit := range c.Commits {
		for _, f := range commit.Files {
			if f.Filename == "" {
				continue
			}
			if _, ok := seen[f.Filename]; ok {
				continue
			}
			seen[f.Filename] = struct{}{}
			files = append(files, f.Filename)
		}
	}
	return files
}

// DedupeChanges keeps the first occurrence of every Key.
func DedupeChanges(changes []ClassifiedChange) []ClassifiedChange {
	seen := make(map[string]struct{}, len(changes))
	out := make([]ClassifiedChange, 0, len(changes))
	for _, c := range changes {
		k := c.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SortChangesByMergedAt orders changes newest first. The sort is stable so
// equal timestamps keep batch order.
func SortChangesByMergedAt(changes []ClassifiedChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		return newer(changes[i].MergedAt, changes[j].MergedAt)
	})
}
