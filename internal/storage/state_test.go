package storage

import (
	"path/filepath"
	"testing"

	"github.com/dokzlo13/hubd/internal/db"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

type record struct {
	State  string `json:"state"`
	Source string `json:"source"`
}

func TestTyped_VersionIncrements(t *testing.T) {
	typed := NewTyped[record](openStore(t), "security")

	got, version, err := typed.Get("house")
	if err != nil || version != 0 || got != (record{}) {
		t.Fatalf("Get() on empty store = %+v, %d, %v", got, version, err)
	}

	for i, state := range []string{"armed", "disarmed"} {
		if err := typed.Set("house", record{State: state, Source: "test"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, version, err = typed.Get("house")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.State != state || version != int64(i+1) {
			t.Errorf("Get() = %+v v%d, want %s v%d", got, version, state, i+1)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	s := openStore(t)
	if err := s.Set("security", "house", []byte(`{"state":"armed"}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("security", "house"); err != nil {
		t.Fatal(err)
	}
	payload, version, err := s.Get("security", "house")
	if err != nil || payload != nil || version != 0 {
		t.Errorf("Get() after Delete = %q, %d, %v", payload, version, err)
	}
}
