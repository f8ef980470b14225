package overlay

import (
	"testing"

	"github.com/nhle/mailterm/internal/model"
)

func TestProjectPrefersOverlayValue(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1", IsRead: false, IsDone: false}

	s.Apply([]string{"t1"}, model.FieldRead, true)

	got := s.Project(e)
	if !got.IsRead {
		t.Fatal("expected projected IsRead=true after Apply")
	}
	if got.IsDone {
		t.Fatal("IsDone must not be affected by an isRead override")
	}
}

func TestProjectWithoutOverlayReturnsInputUnchanged(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1", IsRead: true}

	got := s.Project(e)
	if got != e {
		t.Fatalf("expected identical entity back, got %+v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1"}

	s.Apply([]string{"t1"}, model.FieldRead, true)
	first := s.Project(e)
	s.Apply([]string{"t1"}, model.FieldRead, true)
	second := s.Project(e)

	if first != second {
		t.Fatalf("re-applying an identical override changed the projection: %+v vs %+v", first, second)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 overlaid entity, got %d", s.Len())
	}
}

func TestLaterApplyWins(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1", IsDone: false}

	s.Apply([]string{"t1"}, model.FieldDone, true)
	s.Apply([]string{"t1"}, model.FieldDone, false)

	if got := s.Project(e); got.IsDone {
		t.Fatal("expected the later Apply(false) to win")
	}
}

func TestClearRevertsToServerValue(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1", IsDeleted: false}

	s.Apply([]string{"t1"}, model.FieldDeleted, true)
	s.Clear([]string{"t1"}, model.FieldDeleted)

	if got := s.Project(e); got.IsDeleted {
		t.Fatal("expected projection to revert to the server value after Clear")
	}
	if _, ok := s.Get("t1", model.FieldDeleted); ok {
		t.Fatal("expected no residual overlay entry after Clear")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d entities", s.Len())
	}
}

func TestIndependentFieldsOnSameEntity(t *testing.T) {
	s := New()
	e := model.Entity{ID: "t1"}

	s.Apply([]string{"t1"}, model.FieldRead, true)
	s.Apply([]string{"t1"}, model.FieldDone, true)
	s.Clear([]string{"t1"}, model.FieldRead)

	got := s.Project(e)
	if got.IsRead {
		t.Fatal("isRead override should be cleared")
	}
	if !got.IsDone {
		t.Fatal("isDone override should survive clearing isRead")
	}
}

func TestClearAllRemovesEveryField(t *testing.T) {
	s := New()
	s.Apply([]string{"t1"}, model.FieldRead, true)
	s.Apply([]string{"t1"}, model.FieldDeleted, true)

	s.ClearAll("t1")

	if s.Len() != 0 {
		t.Fatalf("expected no overlays after ClearAll, got %d", s.Len())
	}
}

func TestApplyManyIDs(t *testing.T) {
	s := New()
	ids := []string{"a", "b", "c"}
	s.Apply(ids, model.FieldRead, true)

	for _, id := range ids {
		v, ok := s.Get(id, model.FieldRead)
		if !ok || !v {
			t.Fatalf("expected override for %s", id)
		}
	}

	s.Clear([]string{"b"}, model.FieldRead)
	if _, ok := s.Get("b", model.FieldRead); ok {
		t.Fatal("expected b cleared")
	}
	if _, ok := s.Get("a", model.FieldRead); !ok {
		t.Fatal("expected a untouched")
	}
}

func TestFieldsSnapshot(t *testing.T) {
	s := New()
	s.Apply([]string{"t1"}, model.FieldRead, true)

	snap := s.Fields("t1")
	if len(snap) != 1 || snap[model.FieldRead] != true {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	// Mutating the snapshot must not leak back into the store.
	snap[model.FieldDone] = true
	if _, ok := s.Get("t1", model.FieldDone); ok {
		t.Fatal("snapshot mutation leaked into the store")
	}
}
