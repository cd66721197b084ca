package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenMigrated(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.Dirty {
		t.Error("schema left dirty")
	}
}

func TestPutGetDelete(t *testing.T) {
	db := testDB(t)

	if _, err := db.Get("auth.session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := db.Put("auth.session", `{"token":"a"}`); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := db.Put("auth.session", `{"token":"b"}`); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, err := db.Get("auth.session")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != `{"token":"b"}` {
		t.Errorf("Get() = %q, want overwritten value", got)
	}

	if err := db.Delete("auth.session"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := db.Delete("auth.session"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := db.Get("auth.session"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutu.db")

	db, err := OpenMigrated(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put("k", "v"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, err = OpenMigrated(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, err := db.Get("k")
	if err != nil || got != "v" {
		t.Errorf("Get() after reopen = %q, %v; want v", got, err)
	}
}
