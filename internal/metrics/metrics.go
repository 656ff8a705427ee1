package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 同步次数
	syncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncs_total",
			Help: "Total number of sync runs by entity and result",
		},
		[]string{"entity", "result"}, // batch/hit/assignment, success/error
	)

	// 新摄取的作业数
	assignmentsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assignments_ingested_total",
			Help: "Total number of assignments ingested from the marketplace",
		},
	)

	// 状态转换次数
	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of committed state transitions",
		},
		[]string{"entity", "from", "to"},
	)

	// 市场调用次数
	marketplaceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_calls_total",
			Help: "Total number of marketplace API calls",
		},
		[]string{"operation", "result"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// HIT 状态分布
	hitsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hits_by_state",
			Help: "Number of HITs by state",
		},
		[]string{"state"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(syncsTotal)
	prometheus.MustRegister(assignmentsIngestedTotal)
	prometheus.MustRegister(stateTransitionsTotal)
	prometheus.MustRegister(marketplaceCallsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(hitsByState)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordSync 记录一次同步
func RecordSync(entity string, err error) {
	syncsTotal.WithLabelValues(entity, result(err)).Inc()
}

// RecordAssignmentIngested 记录作业摄取
func RecordAssignmentIngested() {
	assignmentsIngestedTotal.Inc()
}

// RecordTransition 记录状态转换
func RecordTransition(entity, from, to string) {
	stateTransitionsTotal.WithLabelValues(entity, from, to).Inc()
}

// RecordMarketplaceCall 记录市场调用
func RecordMarketplaceCall(operation string, err error) {
	marketplaceCallsTotal.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateHITsByState 更新 HIT 状态分布指标
func UpdateHITsByState(state string, count float64) {
	hitsByState.WithLabelValues(state).Set(count)
}
