package tasks

import (
	"testing"
	"time"
)

func TestDueAtSeverityWindows(t *testing.T) {
	recorded := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		severity string
		want     time.Time
	}{
		{"critical", recorded.Add(3 * 24 * time.Hour)},
		{"major", recorded.Add(7 * 24 * time.Hour)},
		{"minor", recorded.Add(14 * 24 * time.Hour)},
		{"unknown", recorded.Add(14 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		got := DueAt(tc.severity, recorded, nil)
		if !got.Equal(tc.want) {
			t.Errorf("DueAt(%q) = %v, want %v", tc.severity, got, tc.want)
		}
	}
}

func TestDueAtExplicitDeadlineWins(t *testing.T) {
	recorded := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	deadline := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	got := DueAt("critical", recorded, &deadline)
	if !got.Equal(deadline) {
		t.Errorf("DueAt with deadline = %v, want %v", got, deadline)
	}
}

func TestDueAtZeroDeadlineIgnored(t *testing.T) {
	recorded := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var zero time.Time

	got := DueAt("major", recorded, &zero)
	if !got.Equal(recorded.Add(7 * 24 * time.Hour)) {
		t.Errorf("DueAt with zero deadline = %v, want severity window", got)
	}
}
