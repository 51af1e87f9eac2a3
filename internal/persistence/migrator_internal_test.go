package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractVersion(t *testing.T) {
	cases := map[string]string{
		"000001_event_log.up.sql":   "000001",
		"000002_projections.up.sql": "000002",
		"nounderscore.up.sql":       "nounderscore.up.sql",
	}
	for in, want := range cases {
		if got := extractVersion(in); got != want {
			t.Errorf("extractVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListMigrationFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_b.up.sql", "000001_a.up.sql", "000001_a.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	m := &Migrator{migrationsDir: dir}
	files, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0] != "000001_a.up.sql" || files[1] != "000002_b.up.sql" {
		t.Fatalf("got %v", files)
	}

	pending := pendingFiles(files, map[string]bool{"000001": true})
	if len(pending) != 1 || pending[0] != "000002_b.up.sql" {
		t.Fatalf("pending = %v", pending)
	}
}

func TestRepositoryMigrationsPair(t *testing.T) {
	m := &Migrator{migrationsDir: filepath.Join("..", "..", "migrations")}
	ups, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	downs, err := m.listMigrationFiles(".down.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("%d up migrations, %d down migrations", len(ups), len(downs))
	}
}
