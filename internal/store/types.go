// Package store is the indexed, persistent record of sessions,
// worktrees, project registrations, and file provenance. It is backed by
// an embedded SQLite database (modernc.org/sqlite, pure Go, no cgo)
// opened in WAL journaling mode with NORMAL synchronous durability, and
// supports optimistic concurrency via an updated_at compare-and-swap
// token.
package store

import (
	"fmt"
	"regexp"
	"time"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

func (s Status) valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	default:
		return false
	}
}

// namePattern is the charset shared by session and project names:
// letters, digits, '-', '_', at least one character.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks the shared session/project name charset.
func ValidateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q: must be non-empty letters/digits/-/_ ", name)
	}
	return nil
}

// Worktree is a single project's checked-out branch inside a session.
type Worktree struct {
	ProjectName string    `json:"project_name"`
	Path        string    `json:"path"`
	Branch      string    `json:"branch"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the full persisted record for one session.
type Session struct {
	ID          string
	Name        string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LinearTask  string
	Description string
	Tags        []string
	Metadata    map[string]any
	Worktrees   map[string]Worktree // keyed by project name
	Projects    []string            // ordered set of project names
}

// CreateInput is the set of fields a caller may supply to Create.
type CreateInput struct {
	Name        string
	Status      Status // defaults to StatusActive if empty
	LinearTask  string
	Description string
	Tags        []string
	Metadata    map[string]any
	Projects    []string
}

// UpdateInput carries the whitelisted set of columns Update may change.
// A nil pointer/slice/map means "leave unchanged"; zero-but-non-nil
// values (empty string, empty slice) are applied.
type UpdateInput struct {
	Status      *Status
	LinearTask  *string
	Description *string
	Tags        *[]string
	Metadata    *map[string]any
	Worktrees   *map[string]Worktree
	Projects    *[]string
}

// Project is a registered source repository.
type Project struct {
	Name          string
	Path          string
	Type          string
	DefaultBranch string
	CreatedAt     time.Time
}

// Filters narrows List and Search queries. Zero values mean "no filter".
type Filters struct {
	Status        Status
	LinearTask    string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Tags          []string
}

// SortKey selects the column List results are ordered by.
type SortKey string

const (
	SortUpdatedAt SortKey = "updated_at"
	SortCreatedAt SortKey = "created_at"
	SortName      SortKey = "name"
)

// ListOptions configures List.
type ListOptions struct {
	Filters Filters
	Sort    SortKey // defaults to SortUpdatedAt
	Desc    bool    // defaults to true when Sort is the zero value
	Limit   int     // 0 means unlimited
	Offset  int
}

// SearchResult pairs a session with its computed relevance score.
type SearchResult struct {
	Session        Session
	RelevanceScore int
}

// Statistics summarizes the store's contents.
type Statistics struct {
	Total            int
	ByStatus         map[Status]int
	RecentActivity7d int
	DatabaseSizeMB   float64
}
