package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/idiotic-core/internal/infrastructure/database"
	"github.com/nerrad567/idiotic-core/migrations"
)

// setupTestDB opens an in-memory database with the real migrations applied.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestSQLiteRepository_Touch(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	if err := repo.Touch(ctx, KnownDevice{ID: "s1", Class: "TempSensor", Name: "s1", RemoteAddr: "10.0.0.5:1", LastSeen: t0}); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := repo.Touch(ctx, KnownDevice{ID: "s1", Class: "TempSensor", Name: "kitchen", LastSeen: t1}); err != nil {
		t.Fatalf("second Touch() error = %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "kitchen" {
		t.Errorf("Name = %q, want kitchen", got.Name)
	}
	if got.RemoteAddr != "10.0.0.5:1" {
		t.Errorf("RemoteAddr = %q, empty update should keep the old address", got.RemoteAddr)
	}
	if !got.FirstSeen.Equal(t0) || !got.LastSeen.Equal(t1) {
		t.Errorf("first/last seen = %v / %v, want %v / %v", got.FirstSeen, got.LastSeen, t0, t1)
	}
}

func TestSQLiteRepository_Validation(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	if err := repo.Touch(ctx, KnownDevice{ID: "x"}); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("Touch() without class error = %v, want ErrInvalidRef", err)
	}
	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Get(ghost) error = %v, want ErrUnknownDevice", err)
	}
}

func TestRestore(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	for _, kd := range []KnownDevice{
		{ID: "s1", Class: "TempSensor", Name: "porch"},
		{ID: "l1", Class: "HueLight", Name: "Living Room 2"},
		{ID: "t1", Class: "Toaster", Name: "toast"},
	} {
		if err := repo.Touch(ctx, kd); err != nil {
			t.Fatal(err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 3 {
		t.Fatalf("List() = %d entries, %v", len(list), err)
	}

	r := NewRegistry(testCatalog(t))
	n, err := Restore(ctx, repo, r)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d devices, want 2 (Toaster has no class)", n)
	}
	if _, err := r.ResolveByName("HueLight", "Living Room 2"); err != nil {
		t.Errorf("restored light not resolvable by name: %v", err)
	}

	// Running again registers nothing new.
	if n, _ := Restore(ctx, repo, r); n != 0 {
		t.Errorf("second Restore() registered %d", n)
	}
}

func TestRestore_SkipsReservedNames(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	for _, kd := range []KnownDevice{
		{ID: "old-hue", Class: "HueLight", Name: "Living Room 2"},
		{ID: "hue-2", Class: "HueLight", Name: "Living Room 2"},
		{ID: "s1", Class: "TempSensor", Name: "Living Room 2"},
	} {
		if err := repo.Touch(ctx, kd); err != nil {
			t.Fatal(err)
		}
	}

	r := NewRegistry(testCatalog(t))
	n, err := Restore(ctx, repo, r, Ref{ID: "hue-2", Class: "HueLight", Name: "Living Room 2"})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d devices, want 2", n)
	}
	if _, err := r.Resolve("old-hue"); err == nil {
		t.Error("device holding a reserved name was restored")
	}
	light, err := r.ResolveByName("HueLight", "Living Room 2")
	if err != nil || light.ID() != "hue-2" {
		t.Errorf("ResolveByName() = %v, %v; want hue-2", light, err)
	}
	if _, err := r.Resolve("s1"); err != nil {
		t.Errorf("same name in another class was skipped: %v", err)
	}
}

func TestRestore_ReservedWithoutID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()
	if err := repo.Touch(ctx, KnownDevice{ID: "old-hue", Class: "HueLight", Name: "lamp"}); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(testCatalog(t))
	n, err := Restore(ctx, repo, r, Ref{Class: "HueLight", Name: "lamp"})
	if err != nil || n != 0 {
		t.Errorf("Restore() = %d, %v; want 0, nil", n, err)
	}
}
