package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/messaging/kafka"
)

// setupKafkaProducer подключается к брокерам из строки вида
// "host1:9092,host2:9092". Пустая строка означает запуск без Kafka:
// возвращается nil, nil, а события остаются в outbox.
func setupKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("kafka producer unavailable, order events are disabled")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer is ready")
	return producer, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// teardownKafkaProducer закрывает producer, переживая nil.
func teardownKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
		return
	}
	logger.Info("kafka producer stopped")
}
