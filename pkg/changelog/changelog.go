// Package changelog holds the changelog document stored per repository and the
// rules for combining a freshly generated changelog with the stored one.
package changelog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category is one of the five fixed changelog sections.
type Category string

const (
	NewFeatures     Category = "New Features"
	BugFixes        Category = "Bug Fixes"
	BreakingChanges Category = "Breaking Changes"
	Documentation   Category = "Documentation"
	Other           Category = "Other"
)

var categories = []Category{NewFeatures, BugFixes, BreakingChanges, Documentation, Other}

// Categories returns the five categories in canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsKnown reports whether c is one of the five fixed categories.
func (c Category) IsKnown() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps free-form category names produced by the formatter onto
// the fixed set. Anything unrecognised lands in Other.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new features", "new feature", "features", "feature", "feat":
		return NewFeatures
	case "bug fixes", "bug fix", "fixes", "fix", "bugfix", "bugfixes":
		return BugFixes
	case "breaking changes", "breaking change", "breaking":
		return BreakingChanges
	case "documentation", "docs", "doc":
		return Documentation
	default:
		return Other
	}
}

// Entry is a single human readable change inside a section.
type Entry struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	ActionRequired string     `json:"actionRequired"`
	MergedAt       *time.Time `json:"mergedAt,omitempty"`
	PRNumber       int        `json:"prNumber,omitempty"`
	PRURL          string     `json:"prUrl,omitempty"`
	Files          []string   `json:"files,omitempty"`
}

// Key is the identity used when merging entries into a stored section: the PR
// number when known, otherwise a digest of the normalised title and merge time.
func (e Entry) Key() string {
	if e.PRNumber > 0 {
		return fmt.Sprintf("pr:%d", e.PRNumber)
	}
	merged := ""
	if e.MergedAt != nil {
		merged = e.MergedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(normalizeTitle(e.Title) + "|" + merged))
	return "title:" + hex.EncodeToString(sum[:])[:16]
}

// Section groups the entries of one category.
type Section struct {
	Type    Category `json:"type"`
	Changes []Entry  `json:"changes"`
}

// Changelog is the single current changelog state of a repository.
type Changelog struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Sections    []Section `json:"sections"`
}

// Empty returns a changelog with all five sections present and no entries.
func Empty(now time.Time) *Changelog {
	cl := &Changelog{LastUpdated: now, Sections: make([]Section, 0, len(categories))}
	for _, c := range categories {
		cl.Sections = append(cl.Sections, Section{Type: c, Changes: []Entry{}})
	}
	return cl
}

// Section returns the section for c, or nil.
func (cl *Changelog) Section(c Category) *Section {
	if cl == nil {
		return nil
	}
	for i := range cl.Sections {
		if cl.Sections[i].Type == c {
			return &cl.Sections[i]
		}
	}
	return nil
}

// EntryCount returns the number of entries across all sections.
func (cl *Changelog) EntryCount() int {
	if cl == nil {
		return 0
	}
	n := 0
	for _, s := range cl.Sections {
		n += len(s.Changes)
	}
	return n
}

// Normalize collapses repeated sections of the same category (keeping the
// order of their entries), adds any missing fixed category and orders the
// fixed categories canonically. Sections with a category outside the fixed
// set are kept after the fixed ones.
func Normalize(cl *Changelog) *Changelog {
	out := &Changelog{}
	if cl != nil {
		out.LastUpdated = cl.LastUpdated
	}

	byType := make(map[Category][]Entry)
	var extra []Category
	if cl != nil {
		for _, s := range cl.Sections {
			if _, seen := byType[s.Type]; !seen && !s.Type.IsKnown() {
				extra = append(extra, s.Type)
			}
			byType[s.Type] = append(byType[s.Type], s.Changes...)
		}
	}

	for _, c := range append(Categories(), extra...) {
		changes := byType[c]
		if changes == nil {
			changes = []Entry{}
		}
		out.Sections = append(out.Sections, Section{Type: c, Changes: changes})
	}
	return out
}

// Merge folds incoming into existing. For every category the stored entries
// keep their order and incoming entries are appended in their produced order,
// skipping any entry whose Key already exists in that section. The result has
// exactly one section per category. Neither argument is modified.
func Merge(existing, incoming *Changelog, now time.Time) *Changelog {
	base := Normalize(existing)
	add := Normalize(incoming)

	merged := &Changelog{LastUpdated: now}
	for _, s := range base.Sections {
		entries := make([]Entry, 0, len(s.Changes))
		seen := make(map[string]struct{}, len(s.Changes))
		for _, e := range s.Changes {
			seen[e.Key()] = struct{}{}
			entries = append(entries, e)
		}
		if newSection := add.Section(s.Type); newSection != nil {
			for _, e := range newSection.Changes {
				k := e.Key()
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				entries = append(entries, e)
			}
		}
		merged.Sections = append(merged.Sections, Section{Type: s.Type, Changes: entries})
	}

	// Unknown categories only present in the incoming document.
	for _, s := range add.Sections {
		if merged.Section(s.Type) == nil {
			merged.Sections = append(merged.Sections, Section{Type: s.Type, Changes: append([]Entry{}, s.Changes...)})
		}
	}
	return merged
}

// SortEntries orders entries newest first. Undated entries go last and ties
// keep their relative order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return newer(entries[i].MergedAt, entries[j].MergedAt)
	})
}

func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
