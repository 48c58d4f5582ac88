package tasks

import "time"

// Repair windows by defect severity.
const (
	criticalWindow = 3 * 24 * time.Hour
	majorWindow    = 7 * 24 * time.Hour
	minorWindow    = 14 * 24 * time.Hour
)

// DueAt picks the follow-up deadline: an explicit defect deadline wins,
// otherwise the severity window counts from the recording time.
func DueAt(severity string, recordedAt time.Time, deadline *time.Time) time.Time {
	if deadline != nil && !deadline.IsZero() {
		return deadline.UTC()
	}
	switch severity {
	case "critical":
		return recordedAt.Add(criticalWindow).UTC()
	case "major":
		return recordedAt.Add(majorWindow).UTC()
	default:
		return recordedAt.Add(minorWindow).UTC()
	}
}
