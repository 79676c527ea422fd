package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	// 支付网关调用延迟（毫秒）
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_latency_ms",
			Help:    "Payment gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"provider", "operation", "status"},
	)

	// 熔断器状态 0=closed 1=open 2=half_open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per dependency",
		},
		[]string{"name"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 里程碑付款结果
	PayoutCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_payout_total",
			Help: "Milestone payout attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	// 平台服务费累计（最小货币单位）
	PlatformFeeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_platform_fee_minor_units_total",
			Help: "Platform fee collected in the currency's minor unit",
		},
		[]string{"currency"},
	)

	// 托管注资
	FundingCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_funding_total",
			Help: "Milestone funding events by provider and stage",
		},
		[]string{"provider", "stage"},
	)

	// 通知投递
	NotificationDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_total",
			Help: "Notification deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)

	// 在线 websocket 连接数
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Currently open notification websocket connections",
		},
	)

	// outbox 发布结果
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox events published by routing key and result",
		},
		[]string{"routing_key", "result"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordGatewayCall 记录网关调用延迟
func RecordGatewayCall(provider, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayCallLatency.WithLabelValues(provider, operation, status).Observe(float64(duration.Milliseconds()))
}

// SetCircuitBreakerState 记录熔断器状态
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(statement string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

// RecordPayout 记录付款结果，成功时累计平台服务费
func RecordPayout(provider, result, currency string, platformFee int64) {
	PayoutCount.WithLabelValues(provider, result).Inc()
	if result == "success" && platformFee > 0 {
		PlatformFeeTotal.WithLabelValues(currency).Add(float64(platformFee))
	}
}

// RecordFunding 记录注资阶段 (checkout_created / confirmed / duplicate_payment)
func RecordFunding(provider, stage string) {
	FundingCount.WithLabelValues(provider, stage).Inc()
}

// RecordNotification 记录通知投递
func RecordNotification(channel string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	NotificationDelivered.WithLabelValues(channel, result).Inc()
}

// RecordOutboxPublish 记录 outbox 发布结果
func RecordOutboxPublish(routingKey string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	OutboxPublished.WithLabelValues(routingKey, result).Inc()
}
