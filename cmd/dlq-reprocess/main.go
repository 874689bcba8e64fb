// dlq-reprocess перечитывает mos.dlq и возвращает застрявшие события
// заказов обратно в основной топик. По умолчанию работает в dry-run:
// только печатает кандидатов, ничего не публикуя.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/messaging/kafka"
)

type replayConfig struct {
	brokers []string
	from    string
	to      string
	limit   int
	execute bool
	tail    bool
	idle    time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := loadReplayConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := replayDLQ(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func loadReplayConfig() (replayConfig, error) {
	var (
		cfg        replayConfig
		brokersRaw string
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: MOS_KAFKA_BROKERS)")
	flag.StringVar(&cfg.from, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.to, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", 100, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.tail, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idle, "idle-timeout", 2*time.Second, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("MOS_KAFKA_BROKERS")
	}
	cfg.brokers = brokerList(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or MOS_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.from) == "":
		return replayConfig{}, fmt.Errorf("source-topic must not be empty")
	case strings.TrimSpace(cfg.to) == "":
		return replayConfig{}, fmt.Errorf("target-topic must not be empty")
	case cfg.limit <= 0:
		return replayConfig{}, fmt.Errorf("limit must be positive")
	case cfg.idle <= 0:
		return replayConfig{}, fmt.Errorf("idle-timeout must be positive")
	}

	return cfg, nil
}

func brokerList(raw string) []string {
	var out []string
	for _, piece := range strings.Split(raw, ",") {
		if b := strings.TrimSpace(piece); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Сигнатуры методов повторяют sarama.Client, sarama.PartitionConsumer и
// sarama.SyncProducer, чтобы живые клиенты подходили без обёрток, а в
// тестах работали заглушки.

type brokerClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type messageStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamOpener interface {
	ConsumePartition(topic string, partition int32, offset int64) (messageStream, error)
	Close() error
}

type messageSink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// consumerShim сужает sarama.Consumer до streamOpener.
type consumerShim struct {
	c sarama.Consumer
}

func (s consumerShim) ConsumePartition(topic string, partition int32, offset int64) (messageStream, error) {
	return s.c.ConsumePartition(topic, partition, offset)
}

func (s consumerShim) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// Подменяется в тестах на фабрику заглушек.
var connectKafka = func(cfg replayConfig) (brokerClient, streamOpener, messageSink, error) {
	consumeCfg := sarama.NewConfig()
	consumeCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumeCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}

	// sink нужен только в execute-режиме
	if !cfg.execute {
		return client, consumerShim{c: consumer}, nil, nil
	}

	produceCfg := sarama.NewConfig()
	produceCfg.Producer.Idempotent = true
	produceCfg.Net.MaxOpenRequests = 1
	produceCfg.Producer.RequiredAcks = sarama.WaitForAll
	produceCfg.Producer.Retry.Max = 5
	produceCfg.Producer.Return.Successes = true
	produceCfg.Producer.Compression = sarama.CompressionSnappy

	sink, err := sarama.NewSyncProducer(cfg.brokers, produceCfg)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	return client, consumerShim{c: consumer}, sink, nil
}

func replayDLQ(ctx context.Context, cfg replayConfig) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.from,
		"target_topic": cfg.to,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.tail,
	}).Info("starting dlq replay")

	client, opener, sink, err := connectKafka(cfg)
	if err != nil {
		return err
	}

	session := &replaySession{cfg: cfg, client: client, opener: opener, sink: sink}
	defer session.close()

	return session.run(ctx)
}

type replayStats struct {
	scanned   int
	republish int
	skipped   int
}

// replaySession держит подключения одного прогона и накапливает счётчики.
type replaySession struct {
	cfg    replayConfig
	client brokerClient
	opener streamOpener
	sink   messageSink
	stats  replayStats
}

func (s *replaySession) close() {
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if s.opener != nil {
		_ = s.opener.Close()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *replaySession) run(ctx context.Context) error {
	if s.client == nil || s.opener == nil {
		return fmt.Errorf("kafka connections are not established")
	}
	if s.cfg.execute && s.sink == nil {
		return fmt.Errorf("execute mode requires a producer")
	}

	partitions, err := s.client.Partitions(s.cfg.from)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", s.cfg.from, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", s.cfg.from).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := s.cfg.limit - s.stats.scanned
		if budget <= 0 {
			break
		}
		if err := s.drainPartition(ctx, partition, budget); err != nil {
			return err
		}
	}

	mode := "dry-run"
	if s.cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": s.stats.scanned,
		"replayed":  s.stats.republish,
		"skipped":   s.stats.skipped,
	}).Info("dlq replay finished")

	return nil
}

// drainPartition вычитывает одну партицию от стартового offset до
// верхней границы, зафиксированной на момент входа, тратя не больше
// budget сообщений.
func (s *replaySession) drainPartition(ctx context.Context, partition int32, budget int) error {
	oldest, err := s.client.GetOffset(s.cfg.from, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := s.client.GetOffset(s.cfg.from, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		// в партиции пусто
		return nil
	}

	start := oldest
	if s.cfg.tail {
		if start = newest - int64(budget); start < oldest {
			start = oldest
		}
	}

	stream, err := s.opener.ConsumePartition(s.cfg.from, partition, start)
	if err != nil {
		return fmt.Errorf("open partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(s.cfg.idle)
	defer idle.Stop()

	for scanned := 0; scanned < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case streamErr := <-stream.Errors():
			if streamErr != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, streamErr)
			}

		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.idle)

			if msg.Offset >= newest {
				return nil
			}

			scanned++
			if err := s.handle(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= newest {
				return nil
			}

		case <-idle.C:
			return nil
		}
	}

	return nil
}

// handle разбирает одно сообщение DLQ и, в execute-режиме, публикует его
// replay. Чужие форматы пропускаются без остановки прогона.
func (s *replaySession) handle(msg *sarama.ConsumerMessage) error {
	s.stats.scanned++

	out, ok, err := rebuildEvent(msg.Value, s.cfg.to)
	if err != nil {
		s.stats.skipped++
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		s.stats.skipped++
		return nil
	}

	if !s.cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": out.Topic,
		}).Info("dlq replay candidate")
		s.stats.republish++
		return nil
	}

	if _, _, err := s.sink.SendMessage(out); err != nil {
		return fmt.Errorf("republish dlq message: %w", err)
	}
	s.stats.republish++

	return nil
}

// dlqEnvelope — внешний конверт DLQ-сообщения, который пишет outbox
// worker. Его payload содержит dlqBody.
type dlqEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// dlqBody — содержимое DLQ-записи: исходное событие и причина отказа.
type dlqBody struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// republishEnvelope повторяет формат штатной публикации outbox, чтобы
// потребители не отличали replay от первичной доставки.
type republishEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// rebuildEvent раскрывает DLQ-конверт и собирает сообщение для повторной
// публикации. ok=false означает сообщение чужого формата.
func rebuildEvent(raw []byte, topic string) (*sarama.ProducerMessage, bool, error) {
	var envelope dlqEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Payload) == 0 {
		return nil, false, nil
	}

	var body dlqBody
	if err := json.Unmarshal(envelope.Payload, &body); err != nil {
		return nil, false, fmt.Errorf("decode dlq body: %w", err)
	}
	if len(body.Payload) == 0 {
		return nil, false, fmt.Errorf("dlq body does not carry the original event payload")
	}

	out := republishEnvelope{
		ID:            pick(body.OutboxID, envelope.ID),
		AggregateType: pick(body.AggregateType, envelope.AggregateType),
		AggregateID:   pick(body.AggregateID, envelope.AggregateID),
		EventType:     pick(body.EventType, envelope.EventType),
		Payload:       body.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(out)
	if err != nil {
		return nil, false, fmt.Errorf("encode republish envelope: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(pick(out.AggregateID, out.ID)),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now().UTC(),
	}, true, nil
}

func pick(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
