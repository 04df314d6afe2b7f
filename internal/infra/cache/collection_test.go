package cache_test

import (
	"testing"

	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
)

type item struct {
	ID   int64
	Name string
}

func newItems() *cache.Collection[item] {
	return cache.NewCollection(func(i item) int64 { return i.ID })
}

func TestCollection_ReplaceAndOrder(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 3, Name: "c"}, {ID: 2, Name: "b"}, {ID: 1, Name: "a"}})

	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 items, got %d", len(snap))
	}
	if snap[0].ID != 3 || snap[2].ID != 1 {
		t.Errorf("Replace must keep the given order, got %v", snap)
	}
}

func TestCollection_PrependKeepsNewestFirst(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}})
	c.Prepend(item{ID: 2, Name: "b"})

	snap := c.Snapshot()
	if snap[0].ID != 2 {
		t.Errorf("prepended item should be at the head, got %v", snap)
	}
}

func TestCollection_UpsertReplacesInPlace(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}})

	c.Upsert(item{ID: 2, Name: "updated"})

	snap := c.Snapshot()
	if snap[1].ID != 2 || snap[1].Name != "updated" {
		t.Errorf("Upsert must replace in place, got %v", snap)
	}
	if c.Len() != 3 {
		t.Errorf("Upsert of existing id must not grow the collection")
	}
}

func TestCollection_UpsertPrependsWhenAbsent(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}})

	c.Upsert(item{ID: 9, Name: "new"})

	snap := c.Snapshot()
	if snap[0].ID != 9 {
		t.Errorf("Upsert of unknown id should prepend, got %v", snap)
	}
}

func TestCollection_Remove(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})

	removed, ok := c.Remove(1)
	if !ok || removed.Name != "a" {
		t.Errorf("Remove(1) = %v, %v", removed, ok)
	}
	if _, ok := c.Get(1); ok {
		t.Error("item should be gone after Remove")
	}
	if _, ok := c.Remove(42); ok {
		t.Error("removing an absent id should report false")
	}
}

func TestCollection_Update(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}})

	updated, ok := c.Update(1, func(i *item) { i.Name = "z" })
	if !ok || updated.Name != "z" {
		t.Errorf("Update = %v, %v", updated, ok)
	}
	got, _ := c.Get(1)
	if got.Name != "z" {
		t.Errorf("Update must mutate the stored item, got %v", got)
	}
	if _, ok := c.Update(42, func(i *item) {}); ok {
		t.Error("updating an absent id should report false")
	}
}

func TestCollection_SnapshotIsACopy(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "a"}})

	snap := c.Snapshot()
	snap[0].Name = "mutated"

	got, _ := c.Get(1)
	if got.Name != "a" {
		t.Error("mutating a snapshot must not affect the collection")
	}
}

func TestCollection_Filter(t *testing.T) {
	c := newItems()
	c.Replace([]item{{ID: 1, Name: "keep"}, {ID: 2, Name: "drop"}, {ID: 3, Name: "keep"}})

	kept := c.Filter(func(i item) bool { return i.Name == "keep" })
	if len(kept) != 2 || kept[0].ID != 1 || kept[1].ID != 3 {
		t.Errorf("Filter result wrong: %v", kept)
	}
}
