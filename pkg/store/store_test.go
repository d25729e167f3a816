package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/katscan/pkg/collection"
	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "katscan.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleItems() []collection.Item {
	return []collection.Item{
		{ID: "3", Name: "#3", Image: "ipfs://3", Traits: []collection.Trait{{Name: "color", Value: "red"}, {Name: "size", Value: "s"}}},
		{ID: "1", Name: "#1", Traits: []collection.Trait{{Name: "color", Value: "blue"}}},
		{ID: "2", Name: "#2", Description: "plain", Traits: []collection.Trait{{Name: "color", Value: "red"}}},
		{ID: "4", Name: "#4"},
	}
}

func TestOpen(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	for _, table := range []string{"collections", "items", "traits"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}
}

func TestSaveCollection_RoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	info := collection.Info{Tick: "KASPUNKS", Deployer: "kaspa:qq", Max: 1000, Minted: 4, Completed: false}
	items := sampleItems()

	before := time.Now().Add(-time.Second)
	if err := st.SaveCollection(ctx, info, items); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	got, err := st.Items(ctx, "KASPUNKS")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if diff := cmp.Diff(items, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	snap, err := st.Collection(ctx, "KASPUNKS")
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	if diff := cmp.Diff(info, snap.Info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
	if snap.ItemCount != len(items) {
		t.Errorf("ItemCount = %d, want %d", snap.ItemCount, len(items))
	}
	if snap.SavedAt.Before(before) {
		t.Errorf("SavedAt = %v, want after %v", snap.SavedAt, before)
	}
}

func TestSaveCollection_Replaces(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	info := collection.Info{Tick: "KASPUNKS"}

	if err := st.SaveCollection(ctx, info, sampleItems()); err != nil {
		t.Fatalf("first SaveCollection failed: %v", err)
	}
	replacement := []collection.Item{{ID: "9", Traits: []collection.Trait{{Name: "color", Value: "green"}}}}
	if err := st.SaveCollection(ctx, info, replacement); err != nil {
		t.Fatalf("second SaveCollection failed: %v", err)
	}

	got, err := st.Items(ctx, "KASPUNKS")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if diff := cmp.Diff(replacement, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	counts, err := st.TraitCounts(ctx, "KASPUNKS")
	if err != nil {
		t.Fatalf("TraitCounts failed: %v", err)
	}
	if diff := cmp.Diff([]TraitCount{{Trait: "color", Value: "green", Count: 1}}, counts); diff != "" {
		t.Errorf("stale traits survived (-want +got):\n%s", diff)
	}
}

func TestSaveCollection_RequiresTick(t *testing.T) {
	st := openTestStore(t)
	if err := st.SaveCollection(context.Background(), collection.Info{}, nil); err == nil {
		t.Error("SaveCollection without tick succeeded")
	}
}

func TestTraitCounts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveCollection(ctx, collection.Info{Tick: "KASPUNKS"}, sampleItems()); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	got, err := st.TraitCounts(ctx, "KASPUNKS")
	if err != nil {
		t.Fatalf("TraitCounts failed: %v", err)
	}

	want := []TraitCount{
		{Trait: "color", Value: "red", Count: 2},
		{Trait: "color", Value: "blue", Count: 1},
		{Trait: "size", Value: "s", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TraitCounts mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingSnapshot(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Items(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Items() error = %v, want ErrNotFound", err)
	}
	if _, err := st.Collection(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Collection() error = %v, want ErrNotFound", err)
	}
}

func TestCollectionsAndDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, tick := range []string{"ZEBRAS", "APES"} {
		if err := st.SaveCollection(ctx, collection.Info{Tick: tick}, sampleItems()); err != nil {
			t.Fatalf("SaveCollection(%s) failed: %v", tick, err)
		}
	}

	snaps, err := st.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Info.Tick != "APES" || snaps[1].Info.Tick != "ZEBRAS" {
		t.Fatalf("Collections() = %+v, want APES then ZEBRAS", snaps)
	}

	if err := st.Delete(ctx, "APES"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Items(ctx, "APES"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Items() after Delete error = %v, want ErrNotFound", err)
	}
	if counts, _ := st.TraitCounts(ctx, "APES"); len(counts) != 0 {
		t.Errorf("TraitCounts() after Delete = %v, want none", counts)
	}
	if items, err := st.Items(ctx, "ZEBRAS"); err != nil || len(items) != 4 {
		t.Errorf("other snapshot affected: %d items, err %v", len(items), err)
	}
}
