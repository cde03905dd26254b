package changelog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day int) *time.Time {
	t := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func sectionTypes(cl *Changelog) []Category {
	var out []Category
	for _, s := range cl.Sections {
		out = append(out, s.Type)
	}
	return out
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"New Features":     NewFeatures,
		"feature":          NewFeatures,
		" bug fixes ":      BugFixes,
		"BREAKING CHANGES": BreakingChanges,
		"docs":             Documentation,
		"Performance":      Other,
		"":                 Other,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCategory(in), "input %q", in)
	}
}

func TestEmptyHasFiveSections(t *testing.T) {
	cl := Empty(time.Now())
	assert.Equal(t, Categories(), sectionTypes(cl))
	assert.Equal(t, 0, cl.EntryCount())
}

func TestEntryKey(t *testing.T) {
	withPR := Entry{Title: "Add webhooks", PRNumber: 42}
	assert.Equal(t, "pr:42", withPR.Key())

	a := Entry{Title: "Add  Webhooks", MergedAt: at(1)}
	b := Entry{Title: "add webhooks", MergedAt: at(1)}
	c := Entry{Title: "add webhooks", MergedAt: at(2)}
	assert.Equal(t, a.Key(), b.Key(), "title normalisation should ignore case and spacing")
	assert.NotEqual(t, a.Key(), c.Key(), "different merge time should change the key")
	assert.True(t, strings.HasPrefix(a.Key(), "title:"))
}

func TestMergeDisjointCategoriesUnion(t *testing.T) {
	first := &Changelog{Sections: []Section{
		{Type: NewFeatures, Changes: []Entry{{Title: "Webhooks", PRNumber: 1}}},
	}}
	second := &Changelog{Sections: []Section{
		{Type: BugFixes, Changes: []Entry{{Title: "Fix pagination", PRNumber: 2}}},
	}}

	now := time.Now()
	merged := Merge(Merge(nil, first, now), second, now)

	require.Equal(t, Categories(), sectionTypes(merged))
	assert.Len(t, merged.Section(NewFeatures).Changes, 1)
	assert.Len(t, merged.Section(BugFixes).Changes, 1)
	assert.Equal(t, 2, merged.EntryCount())
}

func TestMergeAppendsAfterExistingEntries(t *testing.T) {
	existing := &Changelog{Sections: []Section{
		{Type: NewFeatures, Changes: []Entry{{Title: "Old A", PRNumber: 1}, {Title: "Old B", PRNumber: 2}}},
	}}
	incoming := &Changelog{Sections: []Section{
		{Type: NewFeatures, Changes: []Entry{{Title: "New C", PRNumber: 3}, {Title: "New D", PRNumber: 4}}},
	}}

	merged := Merge(existing, incoming, time.Now())

	var titles []string
	for _, e := range merged.Section(NewFeatures).Changes {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Old A", "Old B", "New C", "New D"}, titles)
	assert.Len(t, existing.Sections[0].Changes, 2, "existing changelog must not be mutated")
}

func TestMergeSamePRAcrossRunsKeepsOneEntry(t *testing.T) {
	run1 := &Changelog{Sections: []Section{
		{Type: NewFeatures, Changes: []Entry{{Title: "Add webhooks", PRNumber: 42}}},
	}}
	run2 := &Changelog{Sections: []Section{
		{Type: NewFeatures, Changes: []Entry{{Title: "Webhooks support (reworded)", PRNumber: 42}}},
	}}

	now := time.Now()
	merged := Merge(Merge(nil, run1, now), run2, now)

	entries := merged.Section(NewFeatures).Changes
	require.Len(t, entries, 1)
	assert.Equal(t, "Add webhooks", entries[0].Title, "first stored entry wins")
}

func TestMergeIsIdempotentOnCategory(t *testing.T) {
	incoming := &Changelog{Sections: []Section{
		{Type: BugFixes, Changes: []Entry{{Title: "Fix", MergedAt: at(3)}}},
	}}
	now := time.Now()
	once := Merge(nil, incoming, now)
	twice := Merge(once, incoming, now)

	assert.Equal(t, sectionTypes(once), sectionTypes(twice))
	assert.Len(t, twice.Section(BugFixes).Changes, 1)
}

func TestMergeCollapsesLegacyDuplicateSections(t *testing.T) {
	legacy := &Changelog{Sections: []Section{
		{Type: Other, Changes: []Entry{{Title: "a", PRNumber: 1}}},
		{Type: "Deprecations", Changes: []Entry{{Title: "old", PRNumber: 9}}},
		{Type: Other, Changes: []Entry{{Title: "b", PRNumber: 2}}},
	}}

	merged := Merge(legacy, nil, time.Now())

	assert.Equal(t, append(Categories(), "Deprecations"), sectionTypes(merged))
	assert.Len(t, merged.Section(Other).Changes, 2)
	assert.Len(t, merged.Section("Deprecations").Changes, 1)
}

func TestSortEntriesNewestFirstUndatedLast(t *testing.T) {
	entries := []Entry{
		{Title: "undated"},
		{Title: "old", MergedAt: at(1)},
		{Title: "new", MergedAt: at(5)},
		{Title: "mid-a", MergedAt: at(3)},
		{Title: "mid-b", MergedAt: at(3)},
	}
	SortEntries(entries)

	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"new", "mid-a", "mid-b", "old", "undated"}, titles)
}

func TestChunk(t *testing.T) {
	items := make([]int, 150)
	chunks := Chunk(items, 20)
	require.Len(t, chunks, 8)
	assert.Len(t, chunks[7], 10)

	assert.Nil(t, Chunk([]int{}, 20))
	assert.Len(t, Chunk([]int{1, 2, 3}, 0), 1)
}

func TestMarkdownSkipsEmptySections(t *testing.T) {
	cl := Empty(time.Now())
	cl.Section(BugFixes).Changes = []Entry{{
		Title:          "Fix error codes",
		Description:    "Payment failures now return 402.",
		ActionRequired: "No action required.",
		PRNumber:       7,
		PRURL:          "https://github.com/acme/widgets/pull/7",
		MergedAt:       at(4),
	}}

	md := cl.Markdown("acme/widgets")
	assert.Contains(t, md, "# acme/widgets")
	assert.Contains(t, md, "## Bug Fixes")
	assert.Contains(t, md, "[#7](https://github.com/acme/widgets/pull/7)")
	assert.Contains(t, md, "**Action Required**: No action required.")
	assert.NotContains(t, md, "## New Features")

	assert.Contains(t, Empty(time.Now()).Markdown(""), "No customer-facing changes")
}
