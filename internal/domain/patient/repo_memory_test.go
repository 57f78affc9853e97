package patient

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepository_AssignsSequentialIDs(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := &Patient{Name: "A"}
	b := &Patient{Name: "B"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if a.ID != "P001" || b.ID != "P002" {
		t.Errorf("expected P001 and P002, got %s and %s", a.ID, b.ID)
	}
}

func TestMemoryRepository_SeededIDsAdvanceSequence(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, &Patient{ID: "P004", Name: "Seeded"}); err != nil {
		t.Fatal(err)
	}
	p := &Patient{Name: "New"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.ID != "P005" {
		t.Errorf("expected P005, got %s", p.ID)
	}
	if err := repo.Create(ctx, &Patient{ID: "P004"}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestMemoryRepository_ListKeepsInsertionOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for _, id := range []string{"P003", "P001", "P002"} {
		if err := repo.Create(ctx, &Patient{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Delete(ctx, "P001"); err != nil {
		t.Fatal(err)
	}

	items, _ := repo.List(ctx)
	if len(items) != 2 || items[0].ID != "P003" || items[1].ID != "P002" {
		t.Errorf("expected [P003 P002], got %v", ids(items))
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	p := &Patient{Name: "Original"}
	_ = repo.Create(ctx, p)

	p.Name = "Mutated"
	got, _ := repo.Get(ctx, p.ID)
	if got.Name != "Original" {
		t.Errorf("expected stored record to be unaffected, got %q", got.Name)
	}
	got.Name = "Also mutated"
	again, _ := repo.Get(ctx, p.ID)
	if again.Name != "Original" {
		t.Errorf("expected stored record to be unaffected, got %q", again.Name)
	}
}

func TestMemoryRepository_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	if _, err := repo.Get(ctx, "P999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Update(ctx, &Patient{ID: "P999"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "P999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func ids(ps []*Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
