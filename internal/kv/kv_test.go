package kv

import (
	"path/filepath"
	"time"
	"testing"

	"github.com/dokzlo13/hubd/internal/db"
)

func buckets(t *testing.T) map[string]Bucket {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return map[string]Bucket{
		"memory": NewMemoryBucket("flags"),
		"sqlite": NewSQLiteBucket(database.DB, "flags"),
	}
}

func TestBucket_StoreGetDelete(t *testing.T) {
	for name, b := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Store("Sleep Mode", true, nil); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			if err := b.Store("scene", "evening", nil); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := b.Get("Sleep Mode")
			if err != nil || got != true {
				t.Errorf("Get(Sleep Mode) = %v, %v; want true", got, err)
			}

			all, err := b.All()
			if err != nil {
				t.Fatalf("All() error = %v", err)
			}
			if len(all) != 2 || all["scene"] != "evening" {
				t.Errorf("All() = %v", all)
			}

			existed, err := b.Delete("scene")
			if err != nil || !existed {
				t.Errorf("Delete(scene) = %v, %v; want true", existed, err)
			}
			existed, _ = b.Delete("scene")
			if existed {
				t.Error("second Delete should report missing key")
			}

			got, err = b.Get("missing")
			if err != nil || got != nil {
				t.Errorf("Get(missing) = %v, %v; want nil", got, err)
			}
		})
	}
}

func TestSQLiteBucket_BucketsAreIsolated(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	defer database.Close()

	a := NewSQLiteBucket(database.DB, "a")
	b := NewSQLiteBucket(database.DB, "b")
	if err := a.Store("k", "va", nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Get("k"); got != nil {
		t.Errorf("bucket b sees %v from bucket a", got)
	}
	if n, err := CleanupExpired(database.DB); err != nil || n != 0 {
		t.Errorf("CleanupExpired() = %d, %v; want 0", n, err)
	}
}

func TestBucket_TTL(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	defer database.Close()

	now := time.Date(2026, 10, 17, 21, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	sqlite := NewSQLiteBucket(database.DB, "flags")
	sqlite.now = clock
	memory := NewMemoryBucket("flags")
	memory.now = clock

	for name, b := range map[string]Bucket{"sqlite": sqlite, "memory": memory} {
		t.Run(name, func(t *testing.T) {
			if err := b.Store("Movie Mode", true, &StoreOptions{TTL: time.Hour}); err != nil {
				t.Fatal(err)
			}
			if got, _ := b.Get("Movie Mode"); got != true {
				t.Fatalf("Get() before expiry = %v", got)
			}
		})
	}

	now = now.Add(2 * time.Hour)
	for name, b := range map[string]Bucket{"sqlite": sqlite, "memory": memory} {
		t.Run(name+"/expired", func(t *testing.T) {
			if got, _ := b.Get("Movie Mode"); got != nil {
				t.Errorf("Get() after expiry = %v, want nil", got)
			}
			if all, _ := b.All(); len(all) != 0 {
				t.Errorf("All() after expiry = %v", all)
			}
		})
	}
}
