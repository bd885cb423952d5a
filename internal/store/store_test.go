package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sxn.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	created, err := s.Create(ctx, CreateInput{Name: "feature-auth", Description: "auth work", Tags: []string{"backend"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Status != StatusActive {
		t.Errorf("Status = %v, want %v", created.Status, StatusActive)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "feature-auth" || len(got.Tags) != 1 || got.Tags[0] != "backend" {
		t.Errorf("Get() = %+v", got)
	}

	byName, err := s.GetByName(ctx, "feature-auth")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("GetByName() id = %s, want %s", byName.ID, created.ID)
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, CreateInput{Name: "dup"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := s.Create(ctx, CreateInput{Name: "dup"})
	if err == nil {
		t.Fatal("Create() expected conflict for duplicate name")
	}
}

func TestUpdateWithOptimisticConcurrency(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, CreateInput{Name: "x"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	staleVersion := formatTimestamp(sess.UpdatedAt)
	newDesc := "updated"
	if _, err := s.Update(ctx, sess.ID, UpdateInput{Description: &newDesc}, ""); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	_, err = s.Update(ctx, sess.ID, UpdateInput{Description: &newDesc}, staleVersion)
	if err == nil {
		t.Fatal("Update() expected conflict on stale version")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, CreateInput{Name: "a", Status: StatusActive}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create(ctx, CreateInput{Name: "b", Status: StatusArchived}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	active, err := s.List(ctx, ListOptions{Filters: Filters{Status: StatusActive}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(active) != 1 || active[0].Name != "a" {
		t.Errorf("List() = %+v, want only session a", active)
	}
}

func TestDeleteCascadesAndReportsNotFound(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, CreateInput{Name: "x"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); err == nil {
		t.Fatal("Get() expected not-found after delete")
	}
	if err := s.Delete(ctx, sess.ID); err == nil {
		t.Fatal("Delete() expected not-found on second delete")
	}
}

func TestSearchRanksNameMatchAboveTagMatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, CreateInput{Name: "payments-api", Description: "", Tags: nil}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create(ctx, CreateInput{Name: "other", Description: "", Tags: []string{"payments"}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	results, err := s.Search(ctx, "payments", Filters{}, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Session.Name != "payments-api" {
		t.Errorf("top result = %s, want payments-api", results[0].Session.Name)
	}
	if results[0].RelevanceScore <= results[1].RelevanceScore {
		t.Errorf("expected name match to outscore tag match: %+v", results)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, CreateInput{Name: "a", Status: StatusActive}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create(ctx, CreateInput{Name: "b", Status: StatusInactive}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stats, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[StatusActive] != 1 || stats.ByStatus[StatusInactive] != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestMaintenanceRunsIntegrityCheck(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	results, err := s.Maintenance(ctx, []MaintenanceTask{TaskIntegrityCheck, TaskAnalyze})
	if err != nil {
		t.Fatalf("Maintenance() error = %v", err)
	}
	if results[TaskIntegrityCheck] != "ok" {
		t.Errorf("integrity_check = %q, want ok", results[TaskIntegrityCheck])
	}
}

func TestRegisterAndRemoveProject(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, Project{Name: "core", Path: "/work/core", Type: "rails", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("RegisterProject() CreatedAt is zero")
	}

	if _, err := s.Create(ctx, CreateInput{Name: "sess", Projects: []string{"core"}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	refs, err := s.ReferencingSessions(ctx, "core")
	if err != nil {
		t.Fatalf("ReferencingSessions() error = %v", err)
	}
	if len(refs) != 1 || refs[0] != "sess" {
		t.Errorf("ReferencingSessions() = %v", refs)
	}

	if err := s.RemoveProject(ctx, "core"); err != nil {
		t.Fatalf("RemoveProject() error = %v", err)
	}
	if _, err := s.GetProject(ctx, "core"); err == nil {
		t.Fatal("GetProject() expected not-found after removal")
	}
}

func TestReopenAppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sxn.db")
	ctx := context.Background()

	s1, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s1.Create(ctx, CreateInput{Name: "persisted"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s1.Close()

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer s2.Close()

	got, err := s2.GetByName(ctx, "persisted")
	if err != nil {
		t.Fatalf("GetByName() after reopen error = %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("GetByName() = %+v", got)
	}
}
