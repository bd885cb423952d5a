package store

import (
	"context"
	"os"
	"time"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// MaintenanceTask names one operation Maintenance can run.
type MaintenanceTask string

const (
	TaskVacuum         MaintenanceTask = "vacuum"
	TaskAnalyze        MaintenanceTask = "analyze"
	TaskIntegrityCheck MaintenanceTask = "integrity_check"
)

// Stats computes aggregate figures across all sessions: totals by
// status, recent activity, and database file size.
func (s *Store) Stats(ctx context.Context, dbPath string) (Statistics, error) {
	sessions, err := s.List(ctx, ListOptions{})
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		Total:    len(sessions),
		ByStatus: map[Status]int{},
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -7)
	for _, sess := range sessions {
		stats.ByStatus[sess.Status]++
		if sess.UpdatedAt.After(cutoff) {
			stats.RecentActivity7d++
		}
	}

	if dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			stats.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
		}
	}
	return stats, nil
}

// Maintenance runs the requested housekeeping tasks in order and
// reports which ones ran clean. integrity_check failures are reported in
// the return value rather than as an error, since a corrupt database is
// an operational finding, not a call-site mistake.
func (s *Store) Maintenance(ctx context.Context, tasks []MaintenanceTask) (map[MaintenanceTask]string, error) {
	results := map[MaintenanceTask]string{}
	for _, task := range tasks {
		switch task {
		case TaskVacuum:
			if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
				return results, sxnerr.Wrap(sxnerr.KindStorage, err, "vacuum")
			}
			results[TaskVacuum] = "ok"
		case TaskAnalyze:
			if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
				return results, sxnerr.Wrap(sxnerr.KindStorage, err, "analyze")
			}
			results[TaskAnalyze] = "ok"
		case TaskIntegrityCheck:
			var result string
			if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
				return results, sxnerr.Wrap(sxnerr.KindStorage, err, "integrity_check")
			}
			results[TaskIntegrityCheck] = result
		default:
			return results, sxnerr.New(sxnerr.KindValidation, "unknown maintenance task %q", task)
		}
	}
	return results, nil
}
