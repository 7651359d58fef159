package directory

import (
	"database/sql"
	"testing"
	"time"
)

func TestPlaceholders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?,?,?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Fatalf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestStoredTimestampOrderMatchesTimeOrder(t *testing.T) {
	t.Parallel()
	// A fractional-second timestamp must sort after the whole second it
	// follows, or the MAX() upsert could pick the older watermark.
	whole := time.Date(2024, 6, 5, 20, 15, 0, 0, time.UTC)
	frac := whole.Add(500 * time.Millisecond)

	a := whole.Format(sqliteTimeLayout)
	b := frac.Format(sqliteTimeLayout)
	if !(a < b) {
		t.Fatalf("stored order %q >= %q disagrees with time order", a, b)
	}

	got, ok := parseStoredTime(sql.NullString{Valid: true, String: b})
	if !ok || !got.Equal(frac) {
		t.Fatalf("round trip = %v, %v, want %v", got, ok, frac)
	}
}

func TestParseStoredTime(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 6, 5, 20, 15, 0, 0, time.UTC)

	got, ok := parseStoredTime(sql.NullString{Valid: true, String: ts.Format(time.RFC3339Nano)})
	if !ok || !got.Equal(ts) {
		t.Fatalf("parseStoredTime = %v, %v", got, ok)
	}

	if _, ok := parseStoredTime(sql.NullString{}); ok {
		t.Fatal("null column must not parse")
	}
	if _, ok := parseStoredTime(sql.NullString{Valid: true, String: "yesterday"}); ok {
		t.Fatal("garbage timestamp must not parse")
	}
}
