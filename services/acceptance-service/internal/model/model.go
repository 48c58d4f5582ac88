package model

import "time"

// Appointment negotiation statuses.
const (
	AppointmentProposed        = "proposed"
	AppointmentAccepted        = "accepted"
	AppointmentDeclined        = "declined"
	AppointmentCounterProposed = "counter_proposed"
)

// Acceptance lifecycle statuses.
const (
	StatusPending          = "PENDING"
	StatusInProgress       = "IN_PROGRESS"
	StatusAccepted         = "ACCEPTED"
	StatusRejected         = "REJECTED"
	StatusRequiresRevision = "REQUIRES_REVISION"
)

// Defect severities.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// Work item completion statuses, mirrored from the work-item store.
const (
	WorkCompletionRequested = "completion_requested"
	WorkUnderReview         = "under_review"
	WorkRevisionRequested   = "revision_requested"
	WorkDefectsResolved     = "defects_resolved"
	WorkCompleted           = "completed"
	WorkRejected            = "rejected"
)

type WorkItem struct {
	ID                   string
	Title                string
	CommissioningPartyID string
	PerformingPartyID    string
	CompletionStatus     string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Appointment struct {
	ID              string
	WorkItemID      string
	ProposerID      string
	InviteeID       string
	ProposedDate    time.Time
	Status          string
	CounterDate     *time.Time
	Notes           string
	ResponseMessage string
	RespondedAt     *time.Time
	Superseded      bool
	Locked          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Acceptance struct {
	ID                   string
	WorkItemID           string
	AppointmentID        string
	CommissioningPartyID string
	PerformingPartyID    string
	CreatedBy            string
	Status               string
	Accepted             *bool
	ScheduledDate        *time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	FinalizedAt          *time.Time
	Notes                string
	CommissioningNotes   string
	PerformingNotes      string
	QualityRating        *int
	TimelinessRating     *int
	OverallRating        *int
	WarrantyStartDate    *time.Time
	WarrantyPeriodMonths int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Defect struct {
	ID              string
	AcceptanceID    string
	Title           string
	Description     string
	Severity        string
	Location        string
	Room            string
	Photos          []string
	Resolved        bool
	ResolutionNotes string
	ResolvedAt      *time.Time
	ResolvedBy      string
	Deadline        *time.Time
	TaskID          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Rating struct {
	ID                   string
	CommissioningPartyID string
	PerformingPartyID    string
	WorkItemID           string
	Quality              int
	Timeliness           int
	Communication        int
	Value                int
	Overall              float64
	Comment              string
	Public               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Terminal reports whether an acceptance status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusAccepted || status == StatusRejected
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}
