package store

import (
	"context"
	"database/sql"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// RegisterProject persists a new project record. Re-registering an
// already-known name is a conflict; callers that want upsert semantics
// should GetProject first.
func (s *Store) RegisterProject(ctx context.Context, p Project) (Project, error) {
	if err := ValidateName(p.Name); err != nil {
		return Project{}, sxnerr.Wrap(sxnerr.KindValidation, err, "register project")
	}
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, path, type, default_branch, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Path, p.Type, p.DefaultBranch, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Project{}, sxnerr.Wrap(sxnerr.KindConflict, err, "project %q already registered", p.Name)
		}
		return Project{}, sxnerr.Wrap(sxnerr.KindStorage, err, "insert project")
	}
	return s.GetProject(ctx, p.Name)
}

// GetProject fetches a registered project by name.
func (s *Store) GetProject(ctx context.Context, name string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, path, type, default_branch, created_at FROM projects WHERE name = ?`, name)
	var p Project
	var createdAt string
	err := row.Scan(&p.Name, &p.Path, &p.Type, &p.DefaultBranch, &createdAt)
	if err == sql.ErrNoRows {
		return Project{}, sxnerr.New(sxnerr.KindNotFound, "project %q not registered", name)
	}
	if err != nil {
		return Project{}, sxnerr.Wrap(sxnerr.KindStorage, err, "scan project")
	}
	if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return Project{}, sxnerr.Wrap(sxnerr.KindStorage, err, "parse project created_at")
	}
	return p, nil
}

// ListProjects returns every registered project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, path, type, default_branch, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "list projects")
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.Name, &p.Path, &p.Type, &p.DefaultBranch, &createdAt); err != nil {
			return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "scan project row")
		}
		if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemoveProject deletes a project registration. A project should only
// be removed once no active session references it; the caller is
// responsible for checking that first — RemoveProject itself enforces
// nothing beyond existence, since that check spans the sessions table
// and belongs at the orchestration layer where both tables are visible
// together.
func (s *Store) RemoveProject(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindStorage, err, "remove project %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindStorage, err, "remove project %s", name)
	}
	if n == 0 {
		return sxnerr.New(sxnerr.KindNotFound, "project %q not registered", name)
	}
	return nil
}

// ReferencingSessions returns the names of active sessions whose
// Projects set includes projectName, for RemoveProject's caller to
// consult before deleting a registration.
func (s *Store) ReferencingSessions(ctx context.Context, projectName string) ([]string, error) {
	sessions, err := s.List(ctx, ListOptions{Filters: Filters{Status: StatusActive}})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, sess := range sessions {
		for _, p := range sess.Projects {
			if p == projectName {
				names = append(names, sess.Name)
				break
			}
		}
	}
	return names, nil
}
