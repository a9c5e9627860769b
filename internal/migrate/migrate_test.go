package migrate

import (
	"strings"
	"testing"
)

func TestVersionsAreOrderedSQL(t *testing.T) {
	t.Parallel()
	vs, err := Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(vs) == 0 || vs[0] != "0001_runs.sql" {
		t.Fatalf("Versions = %v", vs)
	}
	for i := 1; i < len(vs); i++ {
		if vs[i-1] >= vs[i] {
			t.Fatalf("versions out of order: %v", vs)
		}
	}
	b, err := files.ReadFile(vs[0])
	if err != nil || !strings.Contains(string(b), "CREATE TABLE IF NOT EXISTS runs") {
		t.Fatalf("0001_runs.sql unreadable or unexpected: %v", err)
	}
}
