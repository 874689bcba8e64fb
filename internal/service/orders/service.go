package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/domain"
	"github.com/vladislavdragonenkov/mos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/mos/internal/metrics"
)

const (
	timelineEventOrderCreated  = "order.created"
	timelineEventOrderReplaced = "order.replaced"
	timelineEventOrderDeleted  = "order.deleted"

	outboxAggregateOrder = "order"

	defaultIdempotencyTTL = 24 * time.Hour
)

// Service реализует операции персистентного ядра заказов: создание,
// полную замену, удаление и чтение, с публикацией событий через outbox.
type Service struct {
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	idemRepo domain.IdempotencyRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
	IdemRepo domain.IdempotencyRepository
	Metrics  *metrics.OrderMetrics
	Logger   *log.Entry
}

// NewService конструирует сервис заказов. Обязателен только репозиторий:
// timeline, outbox, идемпотентность и метрики подключаются по мере надобности.
func NewService(repo domain.OrderRepository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "orders-service")
	}
	return &Service{
		repo:     repo,
		timeline: opts.Timeline,
		outbox:   opts.Outbox,
		idemRepo: opts.IdemRepo,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// CreateOrder валидирует заказ, применяет правила линии к позициям и
// сохраняет его. Для линии blade пересчитывает агрегаты и получает номер
// ваучера от хранилища.
func (s *Service) CreateOrder(order domain.Order) (domain.Order, error) {
	started := time.Now()

	prepared, err := s.prepare(&order)
	if err != nil {
		s.recordFailure(order.Line, "create")
		return domain.Order{}, err
	}
	order.Items = prepared

	created, err := s.repo.Create(order)
	if err != nil {
		s.recordFailure(order.Line, "create")
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(string(created.Line))
		if created.Line.UsesVoucher() {
			s.metrics.RecordVoucherIssued()
		}
		s.metrics.RecordOperationDuration("create", time.Since(started))
	}

	s.appendTimeline(created.Line, created.ID, timelineEventOrderCreated, "")
	s.enqueueEvent(timelineEventOrderCreated, created)

	s.logger.WithFields(log.Fields{
		"line":       created.Line,
		"order_id":   created.ID,
		"voucher_no": created.VoucherNo,
		"items":      len(created.Items),
	}).Info("order created")

	return created, nil
}

// ReplaceOrder обновляет мастер-запись и целиком заменяет набор позиций.
// Новый набор валидируется до того, как старые позиции будут тронуты:
// при ошибке валидации заказ остаётся нетронутым.
func (s *Service) ReplaceOrder(order domain.Order) error {
	started := time.Now()

	prepared, err := s.prepare(&order)
	if err != nil {
		s.recordFailure(order.Line, "replace")
		return err
	}
	order.Items = prepared

	if err := s.repo.Replace(order); err != nil {
		s.recordFailure(order.Line, "replace")
		return fmt.Errorf("replace order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderReplaced(string(order.Line))
		s.metrics.RecordOperationDuration("replace", time.Since(started))
	}

	s.appendTimeline(order.Line, order.ID, timelineEventOrderReplaced, "")
	s.enqueueEvent(timelineEventOrderReplaced, order)

	s.logger.WithFields(log.Fields{
		"line":     order.Line,
		"order_id": order.ID,
		"items":    len(order.Items),
	}).Info("order replaced")

	return nil
}

// DeleteOrder удаляет заказ вместе с позициями.
func (s *Service) DeleteOrder(line domain.ProductLine, id int64) error {
	started := time.Now()

	if !line.Valid() {
		s.recordFailure(line, "delete")
		return domain.ErrUnknownProductLine
	}

	// Снимок нужен для события: после удаления читать нечего.
	snapshot, err := s.repo.Get(line, id)
	if err != nil {
		s.recordFailure(line, "delete")
		return fmt.Errorf("delete order: %w", err)
	}

	if err := s.repo.Delete(line, id); err != nil {
		s.recordFailure(line, "delete")
		return fmt.Errorf("delete order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderDeleted(string(line))
		s.metrics.RecordOperationDuration("delete", time.Since(started))
	}

	s.appendTimeline(line, id, timelineEventOrderDeleted, "")
	s.enqueueEvent(timelineEventOrderDeleted, snapshot)

	s.logger.WithFields(log.Fields{
		"line":     line,
		"order_id": id,
	}).Info("order deleted")

	return nil
}

// GetOrder возвращает заказ с позициями в порядке вставки.
func (s *Service) GetOrder(line domain.ProductLine, id int64) (domain.Order, error) {
	return s.repo.Get(line, id)
}

// GetOrderByVoucher ищет заказ по номеру ваучера (линии с нумерацией).
func (s *Service) GetOrderByVoucher(line domain.ProductLine, voucherNo int64) (domain.Order, error) {
	return s.repo.GetByVoucher(line, voucherNo)
}

// CreateOrderIdempotent выполняет CreateOrder под защитой idempotency-key:
// повтор с тем же ключом и телом возвращает сохранённый результат, повтор
// с другим телом отклоняется.
func (s *Service) CreateOrderIdempotent(key string, order domain.Order) (domain.Order, error) {
	if s.idemRepo == nil {
		return s.CreateOrder(order)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return s.CreateOrder(order)
	}

	requestHash, err := hashOrderRequest(order)
	if err != nil {
		return domain.Order{}, err
	}

	record, err := s.idemRepo.CreateProcessing(key, requestHash, time.Now().UTC().Add(defaultIdempotencyTTL))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			return s.replayOrReject(record)
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			return domain.Order{}, domain.ErrIdempotencyHashMismatch
		default:
			return domain.Order{}, fmt.Errorf("register idempotency key: %w", err)
		}
	}

	created, createErr := s.CreateOrder(order)
	if createErr != nil {
		body, _ := json.Marshal(map[string]string{"error": createErr.Error()})
		if markErr := s.idemRepo.MarkFailed(key, body); markErr != nil {
			s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to mark idempotency key as failed")
		}
		return domain.Order{}, createErr
	}

	body, err := json.Marshal(created)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to marshal idempotent response")
		body = nil
	}
	if err := s.idemRepo.MarkDone(key, body); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to mark idempotency key as done")
	}

	return created, nil
}

func (s *Service) replayOrReject(record domain.IdempotencyRecord) (domain.Order, error) {
	switch record.Status {
	case domain.IdempotencyStatusDone:
		var replayed domain.Order
		if err := json.Unmarshal(record.ResponseBody, &replayed); err != nil {
			return domain.Order{}, fmt.Errorf("decode stored idempotent response: %w", err)
		}
		return replayed, nil
	case domain.IdempotencyStatusFailed:
		return domain.Order{}, domain.ErrIdempotencyKeyAlreadyExists
	default:
		// Первый запрос ещё в работе.
		return domain.Order{}, domain.ErrIdempotencyKeyAlreadyExists
	}
}

// prepare валидирует мастер-запись и применяет правила линии к позициям.
// Для blade пересчитывает агрегаты по принятым позициям.
func (s *Service) prepare(order *domain.Order) ([]domain.OrderItem, error) {
	if errs := order.ValidateMaster(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	prepared, err := domain.PrepareItems(order.Line, order.Items)
	if err != nil {
		return nil, err
	}

	if order.Line.UsesVoucher() {
		var totalQty int64
		for _, item := range prepared {
			totalQty += item.Qty
		}
		order.TotalQty = totalQty
		order.TotalUnits = int64(len(prepared))
	}

	return prepared, nil
}

func (s *Service) recordFailure(line domain.ProductLine, operation string) {
	if s.metrics != nil {
		s.metrics.RecordOperationFailed(string(line), operation)
	}
}

func (s *Service) appendTimeline(line domain.ProductLine, orderID int64, eventType, reason string) {
	if s.timeline == nil {
		return
	}

	err := s.timeline.Append(domain.TimelineEvent{
		Line:     line,
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"line":     line,
			"order_id": orderID,
		}).Warn("failed to append timeline event")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) enqueueEvent(eventType string, order domain.Order) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewOrderEvent(
		kafka.EventType(eventType),
		string(order.Line),
		order.ID,
		order.VoucherNo,
		order.PartyID,
		len(order.Items),
	)
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal outbox payload")
		return
	}

	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: outboxAggregateOrder,
		AggregateID:   fmt.Sprintf("%s/%d", order.Line, order.ID),
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"line":     order.Line,
			"order_id": order.ID,
		}).Warn("failed to enqueue outbox event")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func hashOrderRequest(order domain.Order) (string, error) {
	raw, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("hash order request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
