package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics published by the acceptance service.
const (
	TopicAppointmentProposed  = "appointment.proposed.v1"
	TopicAppointmentResponded = "appointment.responded.v1"
	TopicAcceptanceStarted    = "acceptance.started.v1"
	TopicDefectRecorded       = "acceptance.defect.recorded.v1"
	TopicRevisionRequested    = "acceptance.revision_requested.v1"
	TopicResolutionSubmitted  = "acceptance.resolution_submitted.v1"
	TopicAcceptanceFinalized  = "acceptance.finalized.v1"
	TopicRatingRecorded       = "rating.recorded.v1"
)
