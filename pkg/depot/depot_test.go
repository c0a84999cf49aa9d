package depot

import (
	"testing"

	"github.com/brinevault/brine/pkg/caserr"
)

func TestEnsureMainDepotIsIdempotent(t *testing.T) {
	r := NewRegistry()

	d1, err := r.EnsureMainDepot("usr_u1", "sha256:empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d1.Name != MainDepotName || d1.Version != 1 {
		t.Fatalf("unexpected main depot: %+v", d1)
	}

	d2, err := r.EnsureMainDepot("usr_u1", "sha256:empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d2.ID != d1.ID {
		t.Fatal("expected EnsureMainDepot to be idempotent")
	}
}

func TestCreateDuplicateNameConflict(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("usr_u1", "proj", "sha256:root", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Create("usr_u1", "proj", "sha256:other", "")
	if !caserr.IsConflict(err) {
		t.Fatalf("expected a conflict error for a duplicate name, got %v", err)
	}
}

func TestUpdateRootIncrementsVersionAndHistory(t *testing.T) {
	r := NewRegistry()
	d, _ := r.Create("usr_u1", "proj", "sha256:v1", "")

	updated, err := r.UpdateRoot("usr_u1", d.ID, "sha256:v2", "second commit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != 2 || updated.Root != "sha256:v2" {
		t.Fatalf("unexpected depot after update: %+v", updated)
	}

	history, err := r.ListHistory("usr_u1", d.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[1].Message != "second commit" {
		t.Fatalf("unexpected history message: %+v", history[1])
	}
}

func TestDeleteMainDepotForbidden(t *testing.T) {
	r := NewRegistry()
	d, _ := r.EnsureMainDepot("usr_u1", "sha256:empty")

	err := r.Delete("usr_u1", d.ID)
	if !caserr.IsForbidden(err) {
		t.Fatalf("expected forbidden for deleting the main depot, got %v", err)
	}
}

func TestDeleteNonMainDepot(t *testing.T) {
	r := NewRegistry()
	d, _ := r.Create("usr_u1", "scratch", "sha256:root", "")

	if err := r.Delete("usr_u1", d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := r.Get("usr_u1", d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected deleted depot to be gone")
	}
}

func TestRollbackAppendsNewVersion(t *testing.T) {
	r := NewRegistry()
	d, _ := r.Create("usr_u1", "proj", "sha256:v1", "")
	r.UpdateRoot("usr_u1", d.ID, "sha256:v2", "")
	r.UpdateRoot("usr_u1", d.ID, "sha256:v3", "")

	rolled, err := r.Rollback("usr_u1", d.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rolled.Version != 4 {
		t.Fatalf("expected rollback to append version 4, got %d", rolled.Version)
	}
	if rolled.Root != "sha256:v1" {
		t.Fatalf("expected rollback to restore v1's root, got %s", rolled.Root)
	}

	history, _ := r.ListHistory("usr_u1", d.ID, 0)
	if len(history) != 4 {
		t.Fatalf("expected history to grow, not rewrite: got %d entries", len(history))
	}
}

func TestListDepotsPagination(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := r.Create("usr_u1", name, "sha256:root", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	page1, err := r.List("usr_u1", 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page1.Depots) != 2 || page1.Depots[0].Name != "alpha" {
		t.Fatalf("unexpected first page: %+v", page1)
	}
	if page1.NextCursor == "" {
		t.Fatal("expected a continuation cursor")
	}

	page2, err := r.List("usr_u1", 2, page1.NextCursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page2.Depots) != 1 || page2.Depots[0].Name != "gamma" {
		t.Fatalf("unexpected second page: %+v", page2)
	}
}

func TestCommitRecordLifecycle(t *testing.T) {
	r := NewRegistry()
	rec, err := r.CreateCommit("usr_u1", "sha256:root", "usr_u1", "initial import")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Title != "initial import" {
		t.Fatalf("unexpected commit record: %+v", rec)
	}

	_, err = r.CreateCommit("usr_u1", "sha256:root", "usr_u1", "dup")
	if !caserr.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate commit root, got %v", err)
	}

	if err := r.UpdateCommitTitle("usr_u1", "sha256:root", "renamed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := r.GetCommit("usr_u1", "sha256:root")
	if err != nil || !ok {
		t.Fatalf("expected commit found, ok=%v err=%v", ok, err)
	}
	if got.Title != "renamed" {
		t.Fatalf("expected title update to persist, got %s", got.Title)
	}

	if err := r.DeleteCommit("usr_u1", "sha256:root"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, _ = r.GetCommit("usr_u1", "sha256:root")
	if ok {
		t.Fatal("expected commit record to be deleted")
	}
}

func TestListCommitsOrderedByCreatedAtDescending(t *testing.T) {
	r := NewRegistry()
	r.CreateCommit("usr_u1", "sha256:v1", "usr_u1", "first")
	r.CreateCommit("usr_u1", "sha256:v2", "usr_u1", "second")

	list, err := r.ListCommits("usr_u1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Root != "sha256:v2" {
		t.Fatalf("expected most recent commit first, got %+v", list)
	}
}
