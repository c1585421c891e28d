package db

import (
	"sort"
	"strings"
	"testing"
)

func TestMigrationNamesSortedAndSQLOnly(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("listing embedded migrations failed: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no embedded migrations found")
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("migrations must apply in lexical order, got %v", names)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".sql") {
			t.Fatalf("non-sql file in migration list: %q", name)
		}
	}
}
