package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/backoffice-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded()); err != nil {
		t.Fatalf("ValidateFS(embedded): %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	for _, path := range onDisk {
		want, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		got, err := fs.ReadFile(migrate.Embedded(), filepath.Base(path))
		if err != nil {
			t.Fatalf("embedded copy of %s missing: %v", path, err)
		}
		if string(got) != string(want) {
			t.Fatalf("embedded copy of %s differs from disk", path)
		}
	}
}

func TestValidateFSRejectsMalformedMigrations(t *testing.T) {
	cases := map[string]string{
		"20260101000000_down_first.sql": "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n",
		"20260101000000_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\nCREATE TABLE x();\n-- +goose Down\nDROP TABLE x;\n",
		"20260101000000_no_down.sql":    "-- +goose Up\nCREATE TABLE x();\n",
		"bad-name.sql":                  "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range cases {
		fsys := fstest.MapFS{name: {Data: []byte(body)}}
		if err := migrate.ValidateFS(fsys); err == nil {
			t.Errorf("expected %s to fail validation", name)
		}
	}

	dup := fstest.MapFS{
		"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
	}
	if err := migrate.ValidateFS(dup); err == nil {
		t.Error("expected duplicate versions to fail validation")
	}
}

func TestVendorAliasMigrationEnforcesUniqueKey(t *testing.T) {
	content := readMigration(t, "*_create_vendor_aliases.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS vendor_aliases",
		"CONSTRAINT uq_vendor_aliases_key UNIQUE (tenant_id, vendor_id, alias_key)",
		"CREATE TABLE IF NOT EXISTS alias_conflicts",
		"DROP TABLE IF EXISTS vendor_aliases",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInvoiceLineMigrationGuardsMappedState(t *testing.T) {
	content := readMigration(t, "*_create_invoice_lines.sql")

	checks := []string{
		"CHECK (status IN ('unmapped', 'suggested', 'mapped'))",
		"CHECK (status <> 'mapped' OR item_id IS NOT NULL)",
		"DROP TABLE IF EXISTS invoice_lines",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPackMigrationRequiresPositiveFactor(t *testing.T) {
	content := readMigration(t, "*_create_pack_configurations.sql")
	if !strings.Contains(content, "CHECK (NOT is_valid OR conversion_factor > 0)") {
		t.Fatal("expected conversion factor check on valid packs")
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Vendor/Alias Index")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_vendor_alias_index.sql") {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add vendor alias index"); err == nil {
		t.Fatal("expected duplicate migration name to be rejected")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
