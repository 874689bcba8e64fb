package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики операций над заказами.
type OrderMetrics struct {
	// Счётчики операций с меткой производственной линии
	ordersCreated  *prometheus.CounterVec
	ordersReplaced *prometheus.CounterVec
	ordersDeleted  *prometheus.CounterVec
	operationsFail *prometheus.CounterVec

	// Выданные номера ваучеров
	vouchersIssued prometheus.Counter

	// Гистограмма времени выполнения операций
	operationDuration *prometheus.HistogramVec

	// Служебные события
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
	outboxBacklog  prometheus.Gauge
}

// NewOrderMetrics создаёт метрики, зарегистрированные в глобальном registry.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mos_orders_created_total",
			Help: "Total number of orders created",
		}, []string{"line"}),
		ordersReplaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mos_orders_replaced_total",
			Help: "Total number of orders replaced",
		}, []string{"line"}),
		ordersDeleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mos_orders_deleted_total",
			Help: "Total number of orders deleted",
		}, []string{"line"}),
		operationsFail: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mos_order_operations_failed_total",
			Help: "Total number of failed order operations",
		}, []string{"line", "operation"}),
		vouchersIssued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mos_vouchers_issued_total",
			Help: "Total number of voucher numbers issued",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "mos_order_operation_duration_seconds",
			Help:    "Duration of order persistence operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mos_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mos_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		outboxBacklog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "mos_outbox_pending_messages",
			Help: "Number of outbox messages waiting to be published",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов линии.
func (m *OrderMetrics) RecordOrderCreated(line string) {
	m.ordersCreated.WithLabelValues(line).Inc()
}

// RecordOrderReplaced увеличивает счётчик заменённых заказов линии.
func (m *OrderMetrics) RecordOrderReplaced(line string) {
	m.ordersReplaced.WithLabelValues(line).Inc()
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов линии.
func (m *OrderMetrics) RecordOrderDeleted(line string) {
	m.ordersDeleted.WithLabelValues(line).Inc()
}

// RecordOperationFailed фиксирует неуспешную операцию.
func (m *OrderMetrics) RecordOperationFailed(line, operation string) {
	m.operationsFail.WithLabelValues(line, operation).Inc()
}

// RecordVoucherIssued увеличивает счётчик выданных ваучеров.
func (m *OrderMetrics) RecordVoucherIssued() {
	m.vouchersIssued.Inc()
}

// RecordOperationDuration записывает длительность операции.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик опубликованных событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// SetOutboxBacklog обновляет размер очереди outbox.
func (m *OrderMetrics) SetOutboxBacklog(pending int) {
	m.outboxBacklog.Set(float64(pending))
}
