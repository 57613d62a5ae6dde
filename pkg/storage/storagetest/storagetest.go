// Package storagetest provides a behavioural test suite shared by every
// [storage.Storage] implementation.
package storagetest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/voicelink/pkg/storage"
)

// Run exercises the Storage contract against stores created by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.GetItem(ctx, "absent")
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if ok || v != "" {
			t.Errorf("GetItem = %q, %v; want \"\", false", v, ok)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetItem(ctx, "k", `[{"role":"user"}]`); err != nil {
			t.Fatalf("SetItem: %v", err)
		}
		v, ok, err := s.GetItem(ctx, "k")
		if err != nil || !ok || v != `[{"role":"user"}]` {
			t.Errorf("GetItem = %q, %v, %v", v, ok, err)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		_ = s.SetItem(ctx, "k", "one")
		if err := s.SetItem(ctx, "k", "two"); err != nil {
			t.Fatalf("SetItem: %v", err)
		}
		if v, _, _ := s.GetItem(ctx, "k"); v != "two" {
			t.Errorf("GetItem = %q; want two", v)
		}
	})

	t.Run("large value", func(t *testing.T) {
		s := newStore(t)
		big := strings.Repeat("x", 256<<10)
		if err := s.SetItem(ctx, "big", big); err != nil {
			t.Fatalf("SetItem: %v", err)
		}
		if v, _, _ := s.GetItem(ctx, "big"); len(v) != len(big) {
			t.Errorf("len = %d; want %d", len(v), len(big))
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		d, ok := s.(storage.Deleter)
		if !ok {
			t.Skip("store does not implement Deleter")
		}
		_ = s.SetItem(ctx, "k", "v")
		if err := d.DeleteItem(ctx, "k"); err != nil {
			t.Fatalf("DeleteItem: %v", err)
		}
		if _, ok, _ := s.GetItem(ctx, "k"); ok {
			t.Error("key still present after delete")
		}
		if err := d.DeleteItem(ctx, "never-set"); err != nil {
			t.Errorf("DeleteItem of missing key: %v", err)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.SetItem(ctx, "shared", strings.Repeat("a", i+1)); err != nil {
					t.Errorf("SetItem: %v", err)
				}
			}()
		}
		wg.Wait()
		if _, ok, err := s.GetItem(ctx, "shared"); !ok || err != nil {
			t.Errorf("GetItem after concurrent writes = %v, %v", ok, err)
		}
	})
}
