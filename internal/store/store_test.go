package store

import (
	"strings"
	"testing"
)

func TestSQLSnippetTruncatesLongStatements(t *testing.T) {
	t.Parallel()

	long := "INSERT INTO advisories (source,advisory_id) VALUES " + strings.Repeat("($1,$2),", 500)
	got := sqlSnippet(long)
	if len(got) != 123 {
		t.Errorf("len = %d, want 120 chars plus ellipsis", len(got))
	}
	if !strings.HasPrefix(got, "INSERT INTO advisories") {
		t.Errorf("snippet = %q, must keep the statement head", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %q, want truncation marker", got)
	}

	short := "SELECT 1"
	if got := sqlSnippet(short); got != short {
		t.Errorf("sqlSnippet(%q) = %q, short statements must pass through", short, got)
	}
}
