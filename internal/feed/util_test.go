package feed

import (
	"testing"
	"time"
)

// ── ParseTime ─────────────────────────────────────────────────────────────────

func TestParseTimeRFC3339Nano(t *testing.T) {
	t.Parallel()

	got := ParseTime("2024-03-15T10:30:00.123456789Z")
	want := time.Date(2024, 3, 15, 10, 30, 0, 123456789, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTime(RFC3339Nano) = %v, want %v", got, want)
	}
}

func TestParseTimeRFC3339(t *testing.T) {
	t.Parallel()

	got := ParseTime("2024-03-15T10:30:00Z")
	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTime(RFC3339) = %v, want %v", got, want)
	}
}

func TestParseTimeNoTimezone(t *testing.T) {
	t.Parallel()

	// Feeds sometimes omit the timezone suffix; we must still parse it.
	got := ParseTime("2024-03-15T10:30:00")
	if got.IsZero() {
		t.Fatal("ParseTime(no-tz) returned zero time")
	}
	if got.Year() != 2024 || got.Month() != 3 || got.Day() != 15 {
		t.Errorf("ParseTime(no-tz) = %v: wrong date", got)
	}
}

func TestParseTimeDateOnly(t *testing.T) {
	t.Parallel()

	got := ParseTime("2024-03-15")
	if got.IsZero() {
		t.Fatal("ParseTime(date-only) returned zero time")
	}
	if got.Year() != 2024 || got.Month() != 3 || got.Day() != 15 {
		t.Errorf("ParseTime(date-only) = %v: wrong date", got)
	}
}

func TestParseTimeInvalidReturnsZero(t *testing.T) {
	t.Parallel()

	got := ParseTime("not-a-date")
	if !got.IsZero() {
		t.Errorf("ParseTime(invalid) = %v, want zero", got)
	}
}

func TestParseTimeEmptyReturnsZero(t *testing.T) {
	t.Parallel()

	got := ParseTime("")
	if !got.IsZero() {
		t.Errorf("ParseTime(\"\") = %v, want zero", got)
	}
}

func TestParseTimeReturnsUTC(t *testing.T) {
	t.Parallel()

	got := ParseTime("2024-03-15T10:30:00Z")
	if got.Location() != time.UTC {
		t.Errorf("ParseTime returned location %v, want UTC", got.Location())
	}
}

// ── ParseTimePtr ──────────────────────────────────────────────────────────────

func TestParseTimePtrNilOnEmpty(t *testing.T) {
	t.Parallel()

	if got := ParseTimePtr(""); got != nil {
		t.Errorf("ParseTimePtr(\"\") = %v, want nil", got)
	}
}

func TestParseTimePtrNilOnInvalid(t *testing.T) {
	t.Parallel()

	if got := ParseTimePtr("not-a-date"); got != nil {
		t.Errorf("ParseTimePtr(invalid) = %v, want nil", got)
	}
}

func TestParseTimePtrNonNilOnValid(t *testing.T) {
	t.Parallel()

	got := ParseTimePtr("2024-03-15T10:30:00Z")
	if got == nil {
		t.Fatal("ParseTimePtr(valid) = nil, want non-nil")
	}
	if got.Year() != 2024 {
		t.Errorf("ParseTimePtr year = %d, want 2024", got.Year())
	}
}

// ── StripNullBytes ────────────────────────────────────────────────────────────

func TestStripNullBytesRemovesNulls(t *testing.T) {
	t.Parallel()

	input := "hello\x00world\x00"
	got := StripNullBytes(input)
	want := "helloworld"
	if got != want {
		t.Errorf("StripNullBytes(%q) = %q, want %q", input, got, want)
	}
}

func TestStripNullBytesNoOpOnCleanString(t *testing.T) {
	t.Parallel()

	input := "no null bytes here"
	if got := StripNullBytes(input); got != input {
		t.Errorf("StripNullBytes(%q) = %q, want unchanged", input, got)
	}
}

func TestStripNullBytesJSONRemovesNulls(t *testing.T) {
	t.Parallel()

	input := []byte(`{"k":"v` + "\x00" + `alue"}`)
	got := StripNullBytesJSON(input)
	for _, b := range got {
		if b == 0 {
			t.Errorf("StripNullBytesJSON left a null byte in output")
		}
	}
}
