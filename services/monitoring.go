package services

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/toolshare/admin_api/shared"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "admin_api"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// HTTP Metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Admission Metrics
var (
	admissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Rate limiter decisions by policy and outcome",
		},
		[]string{"policy", "outcome"},
	)

	rateLimitEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limit_entries",
			Help: "Live entries in the in-memory window table",
		},
	)

	rateLimitEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_evictions_total",
			Help: "Window entries evicted by the cleanup sweep",
		},
	)

	ipBlockChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ip_block_checks_total",
			Help: "Blocked-IP gate lookups by result",
		},
		[]string{"result"},
	)

	ipBlocksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ip_blocks_created_total",
			Help: "Durable IP blocks created or reactivated",
		},
		[]string{"reason"},
	)

	securityLogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_log_writes_total",
			Help: "Security log writes by result",
		},
		[]string{"result"},
	)

	escalationDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escalation_dropped_total",
			Help: "Violations dropped because the escalation queue was full",
		},
	)
)

// System Metrics
var (
	heapAllocBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heap_alloc_bytes",
			Help: "Heap memory allocated in bytes",
		},
	)

	gcTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gc_total",
			Help: "Total number of garbage collections",
		},
	)
)

type MonitoringService struct {
	context.DefaultService

	port     int
	register *prometheus.Registry

	closed      chan struct{}
	server      *fiber.App
	lastGCCount uint32
}

func (svc *MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *context.Context) error {
	svc.port = shared.GetEnvInt("PROMETHEUS_PORT", DEFAULT_PROMETHEUS_PORT)
	svc.register = NewMetricsRegistry()
	return svc.DefaultService.Configure(ctx)
}

// NewMetricsRegistry registers the process collectors and every metric the
// admission path reports.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		admissionDecisionsTotal,
		rateLimitEntries,
		rateLimitEvictionsTotal,
		ipBlockChecksTotal,
		ipBlocksCreatedTotal,
		securityLogWritesTotal,
		escalationDroppedTotal,
		heapAllocBytes,
		gcTotal,
	)
	return reg
}

func (svc *MonitoringService) Start() error {
	svc.closed = make(chan struct{}, 1)

	go svc.updateMemoryMetrics()

	svc.server = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	})
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.Error().Err(err).Msg("Prometheus metrics server stopped")
		}
	}()

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.closed != nil {
		svc.closed <- struct{}{}
	}
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

func (svc *MonitoringService) updateMemoryMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			heapAllocBytes.Set(float64(m.Alloc))
			if m.NumGC > svc.lastGCCount {
				gcTotal.Add(float64(m.NumGC - svc.lastGCCount))
				svc.lastGCCount = m.NumGC
			}

		case <-svc.closed:
			return
		}
	}
}

func (svc *MonitoringService) RecordRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(endpoint, method, status).Observe(duration.Seconds())
}

// MonitoringMiddleware creates a Fiber middleware for monitoring HTTP requests
func MonitoringMiddleware(monitoringSvc *MonitoringService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		method := c.Method()

		err := c.Next()

		// Route pattern is only known after routing.
		endpoint := c.Route().Path
		status := strconv.Itoa(c.Response().StatusCode())
		monitoringSvc.RecordRequest(method, endpoint, status, time.Since(start))

		return err
	}
}
