package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты поиска курса для label result.
const (
	RateResultOK              = "ok"
	RateResultUnknownCurrency = "unknown_currency"
	RateResultUnavailable     = "unavailable"
	RateResultTransport       = "transport_error"
)

// OrderMetrics содержит метрики чтения заказов и поиска курсов.
type OrderMetrics struct {
	// Счётчики курсов
	rateLookups      *prometheus.CounterVec
	upstreamDuration prometheus.Histogram

	// Счётчики операций с заказами
	orderViews   *prometheus.CounterVec
	orderUpdates *prometheus.CounterVec
}

// NewOrderMetrics создаёт метрики и регистрирует их в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer позволяет использовать изолированный registry (тесты).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		rateLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderfx_fx_rate_lookups_total",
			Help: "Total number of exchange rate lookups grouped by result",
		}, []string{"result"}),
		upstreamDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orderfx_fx_upstream_duration_seconds",
			Help:    "Duration of calls to the exchange rate provider in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		orderViews: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderfx_order_views_total",
			Help: "Total number of order detail views built, by conversion",
		}, []string{"converted"}),
		orderUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderfx_order_updates_total",
			Help: "Total number of order update attempts grouped by operation and result",
		}, []string{"operation", "result"}),
	}
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

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordRateLookup увеличивает счётчик поиска курса с заданным результатом.
func (m *OrderMetrics) RecordRateLookup(result string) {
	if m == nil {
		return
	}
	m.rateLookups.WithLabelValues(result).Inc()
}

// RecordUpstreamDuration записывает длительность обращения к провайдеру.
func (m *OrderMetrics) RecordUpstreamDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.Observe(duration.Seconds())
}

// RecordOrderView учитывает построенное представление заказа.
func (m *OrderMetrics) RecordOrderView(converted bool) {
	if m == nil {
		return
	}
	m.orderViews.WithLabelValues(strconv.FormatBool(converted)).Inc()
}

// RecordOrderUpdate учитывает попытку обновления заказа.
func (m *OrderMetrics) RecordOrderUpdate(operation, result string) {
	if m == nil {
		return
	}
	m.orderUpdates.WithLabelValues(operation, result).Inc()
}
