package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "teamgate",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "teamgate",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, asyncProducer *fakeAsyncProducer, wantTopic string) map[string]any {
	t.Helper()

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != wantTopic {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
		return nil
	}
}

func TestPublishSessionCreated(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := domain.SessionCreatedEvent{
		EventID:    "event-123",
		SubjectID:  "subj_01",
		Email:      "ada@example.com",
		RememberMe: true,
		ExpiresAt:  createdAt.Add(30 * 24 * time.Hour),
		CreatedAt:  createdAt,
		Metadata:   map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishSessionCreated(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionCreated returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "teamgate.session.created")

	if got := envelope["event_type"]; got != "teamgate.session.created" {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["subject_id"]; got != event.SubjectID {
		t.Fatalf("unexpected subject_id: %v", got)
	}
	if got := envelope["event_id"]; got != event.EventID {
		t.Fatalf("unexpected event_id: %v", got)
	}

	timestamp, ok := envelope["timestamp"].(string)
	if !ok {
		t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
	}
	if timestamp != createdAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %s", timestamp)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["email"]; got != event.Email {
		t.Fatalf("unexpected email: %v", got)
	}
	if got, ok := payload["remember_me"].(bool); !ok || !got {
		t.Fatalf("unexpected remember_me: %v", payload["remember_me"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "teamgate" {
		t.Fatalf("unexpected metadata service: %v", metadata["service"])
	}
	if metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata environment: %v", metadata["environment"])
	}
}

func TestPublishOrganizationSwitched(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	switchedAt := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	event := domain.OrganizationSwitchedEvent{
		EventID:        "event-456",
		SubjectID:      "subj_01",
		OrganizationID: "org_02",
		SwitchedAt:     switchedAt,
	}

	if err := publisher.PublishOrganizationSwitched(context.Background(), event); err != nil {
		t.Fatalf("PublishOrganizationSwitched returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "teamgate.session.organization_switched")

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["organization_id"]; got != event.OrganizationID {
		t.Fatalf("unexpected organization_id: %v", got)
	}
	if got := payload["subject_id"]; got != event.SubjectID {
		t.Fatalf("unexpected subject_id: %v", got)
	}
}

func TestPublishSessionDestroyedGeneratesEventID(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.SessionDestroyedEvent{
		SubjectID:   "subj_01",
		Reason:      "inactivity_timeout",
		DestroyedAt: time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishSessionDestroyed(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionDestroyed returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "teamgate.session.destroyed")

	eventID, ok := envelope["event_id"].(string)
	if !ok || eventID == "" {
		t.Fatalf("expected generated event_id, got %v", envelope["event_id"])
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["reason"]; got != event.Reason {
		t.Fatalf("unexpected reason: %v", got)
	}
}
