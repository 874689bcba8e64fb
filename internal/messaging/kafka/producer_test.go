package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mock := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		sync:   mock,
		logger: log.WithField("component", "kafka-producer-test"),
	}
	return producer, mock
}

func TestProducer_PublishEvent(t *testing.T) {
	producer, mock := newMockedProducer(t)

	mock.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(EventTypeOrderCreated, "blade", 7, 3, 1, 2)
	if err := producer.PublishEvent(TopicOrderEvents, "blade/7", event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_BrokerError(t *testing.T) {
	producer, mock := newMockedProducer(t)

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderDeleted, "cover", 1, 0, 3, 0)
	if err := producer.PublishEvent(TopicOrderEvents, "cover/1", event); err == nil {
		t.Fatal("expected broker error, got nil")
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_UnserializableEvent(t *testing.T) {
	producer, mock := newMockedProducer(t)

	// json.Marshal не умеет каналы
	if err := producer.PublishEvent(TopicOrderEvents, "x", make(chan int)); err == nil {
		t.Fatal("expected marshal error, got nil")
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	before := time.Now()
	event := NewOrderEvent(EventTypeOrderReplaced, "blade", 9, 4, 2, 5)

	if event.EventType != EventTypeOrderReplaced {
		t.Errorf("unexpected event type: %s", event.EventType)
	}
	if event.Line != "blade" || event.OrderID != 9 || event.VoucherNo != 4 || event.PartyID != 2 {
		t.Errorf("unexpected event fields: %+v", event)
	}
	if event.Items != 5 {
		t.Errorf("unexpected items count: %d", event.Items)
	}
	if event.Timestamp.Before(before) {
		t.Error("timestamp must be set at creation")
	}

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if decoded["event_type"] != "order.replaced" {
		t.Errorf("unexpected serialized event_type: %v", decoded["event_type"])
	}
}

func TestNewOrderEvent_VoucherOmittedForCover(t *testing.T) {
	event := NewOrderEvent(EventTypeOrderCreated, "cover", 11, 0, 4, 1)

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if _, ok := decoded["voucher_no"]; ok {
		t.Error("voucher_no must be omitted when zero")
	}
}
