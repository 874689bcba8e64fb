package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()

	producer := &Producer{sync: mock, logger: log.WithField("component", "kafka-outbox-test")}
	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "blade/7",
		EventType:     "order.created",
		Payload:       []byte(`{"voucher_no":3}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_EnvelopeShape(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(raw []byte) error {
		var envelope map[string]any
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		for _, field := range []string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "published_at"} {
			if _, ok := envelope[field]; !ok {
				t.Errorf("envelope is missing %q: %s", field, string(raw))
			}
		}
		return nil
	})

	producer := &Producer{sync: mock, logger: log.WithField("component", "kafka-outbox-test")}
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "cover/4",
		EventType:     "order.replaced",
		Payload:       []byte(`{"party_id":9}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{sync: mock, logger: log.WithField("component", "kafka-outbox-test")}
	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-3",
		AggregateID: "cover/2",
		EventType:   "order.deleted",
		Payload:     []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for uninitialized publisher")
	}
}
