package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiedChangeKey(t *testing.T) {
	withPR := ClassifiedChange{PRNumber: 12, PRTitle: "Add endpoint"}
	assert.Equal(t, "pr:12", withPR.Key())

	byTitle := ClassifiedChange{PRTitle: "  Add  Endpoint "}
	assert.Equal(t, "title:add endpoint", byTitle.Key())

	fromCommit := ClassifiedChange{Commits: []CommitRef{{SHA: "a", Message: "Add endpoint\n\nlong body"}}}
	assert.Equal(t, "Add endpoint", fromCommit.Title())
	assert.Equal(t, byTitle.Key(), fromCommit.Key())
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	changes := []ClassifiedChange{
		{PRNumber: 1, Summary: "first"},
		{PRTitle: "Docs", Summary: "docs"},
		{PRNumber: 1, Summary: "second"},
		{PRTitle: "docs", Summary: "docs again"},
	}
	out := DedupeChanges(changes)

	assert.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Summary)
	assert.Equal(t, "docs", out[1].Summary)
}

func TestSortChangesStable(t *testing.T) {
	changes := []ClassifiedChange{
		{Summary: "a", MergedAt: at(2)},
		{Summary: "b", MergedAt: at(4)},
		{Summary: "c", MergedAt: at(2)},
		{Summary: "d"},
	}
	SortChangesByMergedAt(changes)

	var got []string
	for _, c := range changes {
		got = append(got, c.Summary)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, got)
}

func TestFilesAreDistinct(t *testing.T) {
	c := ClassifiedChange{Commits: []CommitRef{
		{SHA: "1", Files: []FileRef{{Filename: "api/a.go"}, {Filename: "api/b.go"}}},
		{SHA: "2", Files: []FileRef{{Filename: "api/a.go"}, {Filename: ""}}},
	}}
	assert.Equal(t, []string{"api/a.go", "api/b.go"}, c.Files())
}
