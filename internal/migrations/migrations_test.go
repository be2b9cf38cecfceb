package migrations_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/JaimeStill/manifest/internal/migrations"
)

func TestMigrationsPaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	if len(ups) != 3 {
		t.Errorf("up migrations: got %d, want 3", len(ups))
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down script", v)
		}
	}
}

func TestScopeKeyColumns(t *testing.T) {
	data, err := fs.ReadFile(migrations.FS, "000001_rules.up.sql")
	if err != nil {
		t.Fatalf("read rules migration: %v", err)
	}
	schema := string(data)

	for _, table := range []string{"rules", "learned_mappings"} {
		start := strings.Index(schema, "CREATE TABLE "+table+" (")
		if start < 0 {
			t.Fatalf("table %s not found", table)
		}
		body := schema[start:]
		body = body[:strings.Index(body, ");")]
		if !strings.Contains(body, "scope_key") || !strings.Contains(body, "GENERATED ALWAYS") {
			t.Errorf("table %s has no generated scope_key column", table)
		}
	}
}
