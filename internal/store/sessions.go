package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// Create inserts a new session row and returns the full record,
// including the server-assigned id and timestamps.
func (s *Store) Create(ctx context.Context, in CreateInput) (Session, error) {
	if err := ValidateName(in.Name); err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindValidation, err, "create session")
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !status.valid() {
		return Session{}, sxnerr.New(sxnerr.KindValidation, "invalid status %q", status)
	}

	id, err := generateID()
	if err != nil {
		return Session{}, err
	}
	now := nowUTC()

	tagsJSON, err := marshalJSON(nonNilStrings(in.Tags))
	if err != nil {
		return Session{}, err
	}
	metadataJSON, err := marshalJSON(nonNilMap(in.Metadata))
	if err != nil {
		return Session{}, err
	}
	projectsJSON, err := marshalJSON(nonNilStrings(in.Projects))
	if err != nil {
		return Session{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, status, created_at, updated_at, linear_task, description, tags, metadata, worktrees, projects)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '{}', ?)`,
		id, in.Name, string(status), now, now, nullable(in.LinearTask), in.Description, tagsJSON, metadataJSON, projectsJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, sxnerr.Wrap(sxnerr.KindConflict, err, "session name %q already exists", in.Name)
		}
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "insert session")
	}

	return s.Get(ctx, id)
}

// Get fetches a session by id.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByName fetches a session by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectColumns+` FROM sessions WHERE name = ?`, name)
	return scanSession(row)
}

const sessionSelectColumns = `SELECT id, name, status, created_at, updated_at, linear_task, description, tags, metadata, worktrees, projects`

func scanSession(row *sql.Row) (Session, error) {
	var (
		sess                                Session
		status                              string
		createdAt, updatedAt                string
		linearTask                          sql.NullString
		tagsJSON, metadataJSON              string
		worktreesJSON, projectsJSON         string
	)
	err := row.Scan(&sess.ID, &sess.Name, &status, &createdAt, &updatedAt, &linearTask, &sess.Description, &tagsJSON, &metadataJSON, &worktreesJSON, &projectsJSON)
	if err == sql.ErrNoRows {
		return Session{}, sxnerr.New(sxnerr.KindNotFound, "session not found")
	}
	if err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "scan session")
	}

	sess.Status = Status(status)
	sess.LinearTask = linearTask.String
	if sess.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "parse created_at")
	}
	if sess.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "parse updated_at")
	}
	if sess.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return Session{}, err
	}
	if sess.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return Session{}, err
	}
	if sess.Worktrees, err = unmarshalWorktrees(worktreesJSON); err != nil {
		return Session{}, err
	}
	if sess.Projects, err = unmarshalProjects(projectsJSON); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// List returns sessions matching opts.Filters, ordered and paginated per
// opts.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Session, error) {
	sort := opts.Sort
	if sort == "" {
		sort = SortUpdatedAt
	}
	direction := "DESC"
	if !opts.Desc && opts.Sort != "" {
		direction = "ASC"
	} else if opts.Sort == "" {
		direction = "DESC"
	}

	where, args := buildFilterClause(opts.Filters)
	query := sessionSelectColumns + ` FROM sessions`
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sort, direction)
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "list sessions")
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		var (
			sess                        Session
			status                      string
			createdAt, updatedAt        string
			linearTask                  sql.NullString
			tagsJSON, metadataJSON      string
			worktreesJSON, projectsJSON string
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &status, &createdAt, &updatedAt, &linearTask, &sess.Description, &tagsJSON, &metadataJSON, &worktreesJSON, &projectsJSON); err != nil {
			return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "scan session row")
		}
		sess.Status = Status(status)
		sess.LinearTask = linearTask.String
		var err error
		if sess.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		if sess.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, err
		}
		if sess.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, err
		}
		if sess.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}
		if sess.Worktrees, err = unmarshalWorktrees(worktreesJSON); err != nil {
			return nil, err
		}
		if sess.Projects, err = unmarshalProjects(projectsJSON); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func buildFilterClause(f Filters) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.LinearTask != "" {
		clauses = append(clauses, "linear_task = ?")
		args = append(args, f.LinearTask)
	}
	if !f.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTimestamp(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTimestamp(f.CreatedBefore))
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}
	return strings.Join(clauses, " AND "), args
}

// Update applies a whitelisted set of column changes to the session
// named by id. If expectedVersion is non-empty, the UPDATE statement
// itself carries "AND updated_at = ?" as a compare-and-swap guard, so
// two callers racing on the same stale version can't both succeed:
// whichever commits first wins, and the loser sees RowsAffected() == 0
// and gets a KindConflict error without its changes ever landing.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput, expectedVersion string) (Session, error) {
	sets := []string{"updated_at = ?"}
	now := nowUTC()
	args := []any{now}

	if in.Status != nil {
		if !in.Status.valid() {
			return Session{}, sxnerr.New(sxnerr.KindValidation, "invalid status %q", *in.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*in.Status))
	}
	if in.LinearTask != nil {
		sets = append(sets, "linear_task = ?")
		args = append(args, nullable(*in.LinearTask))
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.Tags != nil {
		j, err := marshalJSON(*in.Tags)
		if err != nil {
			return Session{}, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, j)
	}
	if in.Metadata != nil {
		j, err := marshalJSON(*in.Metadata)
		if err != nil {
			return Session{}, err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, j)
	}
	if in.Worktrees != nil {
		j, err := marshalJSON(*in.Worktrees)
		if err != nil {
			return Session{}, err
		}
		sets = append(sets, "worktrees = ?")
		args = append(args, j)
	}
	if in.Projects != nil {
		j, err := marshalJSON(*in.Projects)
		if err != nil {
			return Session{}, err
		}
		sets = append(sets, "projects = ?")
		args = append(args, j)
	}

	query := "UPDATE sessions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if expectedVersion != "" {
		query += " AND updated_at = ?"
		args = append(args, expectedVersion)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "update session %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, sxnerr.Wrap(sxnerr.KindStorage, err, "update session %s", id)
	}
	if n == 0 {
		// Distinguish a missing row from a stale version: the row
		// existing under a different updated_at is what makes this a
		// conflict rather than a not-found.
		if _, err := s.Get(ctx, id); err != nil {
			return Session{}, err
		}
		return Session{}, sxnerr.New(sxnerr.KindConflict, "session %s was modified concurrently", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a session and, via ON DELETE CASCADE, its worktree and
// file rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindStorage, err, "delete session %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindStorage, err, "delete session %s", id)
	}
	if n == 0 {
		return sxnerr.New(sxnerr.KindNotFound, "session %s not found", id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
