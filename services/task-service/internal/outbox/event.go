package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics published by the task service.
const (
	TopicTaskCreated = "task.created.v1"
	TopicTaskOverdue = "task.overdue.v1"
	TopicTaskDone    = "task.done.v1"
)
