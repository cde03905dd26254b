package models

import (
	"strings"
	"time"

	"github.com/saint0x/ggchangelog/pkg/changelog"
)

// License is the repository license as reported by the host.
type License struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Repository is one stored repository, unique on (owner, name).
type Repository struct {
	ID              uint                 `gorm:"primaryKey" json:"id"`
	Owner           string               `gorm:"size:255;not null;index:idx_repository_owner_name,unique" json:"owner"`
	Name            string               `gorm:"size:255;not null;index:idx_repository_owner_name,unique" json:"name"`
	OwnerAvatarURL  string               `gorm:"size:512" json:"ownerAvatarUrl,omitempty"`
	FullName        string               `gorm:"size:512;not null" json:"fullName"`
	HTMLURL         string               `gorm:"size:512" json:"htmlUrl"`
	DefaultBranch   string               `gorm:"size:255" json:"defaultBranch"`
	Description     string               `gorm:"type:text" json:"description"`
	StargazersCount int                  `gorm:"not null;default:0" json:"stargazersCount"`
	Language        string               `gorm:"size:120" json:"language"`
	Topics          []string             `gorm:"serializer:json" json:"topics"`
	License         License              `gorm:"embedded;embeddedPrefix:license_" json:"license"`
	HostUpdatedAt   *time.Time           `json:"hostUpdatedAt,omitempty"`
	Changelog       *changelog.Changelog `gorm:"serializer:json" json:"changelog,omitempty"`
	LastGeneratedAt *time.Time           `gorm:"index" json:"lastGeneratedAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// Key is the owner/name composite used for progress and run locks.
func (r *Repository) Key() string {
	return strings.ToLower(r.Owner + "/" + r.Name)
}

// FileChange is a file-level change of one commit.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
}

// PullRequest is the pull request a commit was merged through.
type PullRequest struct {
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	MergedAt *time.Time `json:"mergedAt,omitempty"`
	Author   string     `json:"author"`
	Labels   []string   `json:"labels,omitempty"`
	URL      string     `json:"url"`
	Branch   string     `json:"branch,omitempty"`
}

// Commit is one stored commit, keyed by its own SHA. The pull request it
// belongs to is an attribute, so commits of the same PR stay separate rows.
type Commit struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	SHA          string       `gorm:"size:64;not null;uniqueIndex" json:"sha"`
	RepositoryID uint         `gorm:"not null;index" json:"repositoryId"`
	Repository   *Repository  `gorm:"foreignKey:RepositoryID" json:"-"`
	Message      string       `gorm:"type:text;not null" json:"message"`
	Author       string       `gorm:"size:255" json:"author"`
	Date         time.Time    `gorm:"index" json:"date"`
	BranchName   string       `gorm:"size:255" json:"branchName"`
	Files        []FileChange `gorm:"serializer:json" json:"files"`
	Additions    int          `json:"additions"`
	Deletions    int          `json:"deletions"`
	PR           *PullRequest `gorm:"serializer:json;column:pr" json:"pr,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// MergedAt is the PR merge time when known, else the commit date.
func (c *Commit) MergedAt() time.Time {
	if c.PR != nil && c.PR.MergedAt != nil {
		return *c.PR.MergedAt
	}
	return c.Date
}

// RepositoryInfo is the repository metadata returned by the host.
type RepositoryInfo struct {
	Owner           string
	OwnerAvatarURL  string
	Name            string
	FullName        string
	HTMLURL         string
	DefaultBranch   string
	Description     string
	StargazersCount int
	Language        string
	Topics          []string
	License         License
	UpdatedAt       *time.Time
}

// CommitSummary is one entry of the paginated commit listing.
type CommitSummary struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// CommitDetail is the file-level detail of one commit.
type CommitDetail struct {
	Files     []FileChange
	Additions int
	Deletions int
	Total     int
}
