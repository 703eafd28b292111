package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"001_reference_entities", "002_reports"}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, m := range migrations {
		if m.Version != want[i] {
			t.Errorf("migration %d: expected %s, got %s", i, want[i], m.Version)
		}
		if len(m.Checksum) != 64 {
			t.Errorf("migration %s: expected sha256 hex checksum, got %q", m.Version, m.Checksum)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %s is empty", m.Version)
		}
	}
}

func TestLoadMigrations_OrderAndChecksum(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_b.sql": {Data: []byte("SELECT 2;")},
		"migrations/002_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/notes.txt": {Data: []byte("ignored")},
		"migrations/003_c.sql": {Data: []byte("SELECT 1;")},
	}
	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var versions []string
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	if strings.Join(versions, ",") != "002_a,003_c,010_b" {
		t.Errorf("unexpected order %v", versions)
	}
	if migrations[0].Checksum != migrations[1].Checksum {
		t.Error("identical content should have identical checksums")
	}
	if migrations[0].Checksum == migrations[2].Checksum {
		t.Error("different content should have different checksums")
	}
}
