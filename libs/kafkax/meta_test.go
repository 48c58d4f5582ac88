package kafkax

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{
		Topic: "acceptance.finalized.v1",
		Key:   []byte("key-fallback"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-1")},
			{Key: "event_type", Value: []byte("acceptance.finalized.v1")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "acceptance.finalized.v1" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "task.overdue.v1", Key: []byte("key-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "key-1" {
		t.Errorf("EventID = %q, want key fallback", meta.EventID)
	}
	if meta.EventType != "task.overdue.v1" {
		t.Errorf("EventType = %q, want topic fallback", meta.EventType)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitBrokers = %v, want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Error("empty input should yield nil")
	}
}
