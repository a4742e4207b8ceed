package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
	"golang.org/x/time/rate"
)

const ESCALATION_SVC = "escalation_svc"

// Violation describes one over-limit request handed off by the rate limiter.
type Violation struct {
	IP           string
	Path         string
	Method       string
	UserAgent    string
	Policy       string
	WindowCount  int
	Limit        int
	BlockedUntil *time.Time
	OccurredAt   time.Time
}

type EscalationConfig struct {
	Threshold     int
	BlockDuration time.Duration
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	DedupeTTL     time.Duration
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Threshold:     100,
		BlockDuration: 24 * time.Hour,
		Workers:       2,
		QueueSize:     1024,
		JobTimeout:    10 * time.Second,
		DedupeTTL:     time.Minute,
	}
}

// EscalationService turns window violations into audit entries and, past the
// hard threshold, into durable automated blocks. Work runs on a bounded queue
// so the request path never waits on the store.
type EscalationService struct {
	appContext.DefaultService

	cfg         EscalationConfig
	securityLog *SecurityLogService
	blocklist   *BlockedIPService
	redis       *RedisService

	queue chan Violation
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	dropWarn *rate.Limiter
}

func NewEscalationService(securityLog *SecurityLogService, blocklist *BlockedIPService, redis *RedisService, cfg EscalationConfig) *EscalationService {
	svc := &EscalationService{}
	svc.init(securityLog, blocklist, redis, cfg)
	return svc
}

func (svc *EscalationService) Id() string {
	return ESCALATION_SVC
}

func (svc *EscalationService) Configure(ctx *appContext.Context) error {
	defaults := DefaultEscalationConfig()
	svc.cfg = EscalationConfig{
		Threshold:     shared.GetEnvInt("ESCALATION_THRESHOLD", defaults.Threshold),
		BlockDuration: shared.GetEnvDuration("AUTO_BLOCK_DURATION", defaults.BlockDuration),
		Workers:       shared.GetEnvInt("ESCALATION_WORKERS", defaults.Workers),
		QueueSize:     shared.GetEnvInt("ESCALATION_QUEUE_SIZE", defaults.QueueSize),
		JobTimeout:    defaults.JobTimeout,
		DedupeTTL:     defaults.DedupeTTL,
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *EscalationService) Start() error {
	securityLog := svc.Service(SECURITY_LOG_SVC).(*SecurityLogService)
	blocklist := svc.Service(BLOCKED_IP_SVC).(*BlockedIPService)
	redis := svc.Service(REDIS_SVC).(*RedisService)
	svc.init(securityLog, blocklist, redis, svc.cfg)

	svc.StartWorkers()
	log.WithFields(log.Fields{
		"workers":   svc.cfg.Workers,
		"threshold": svc.cfg.Threshold,
	}).Info("Escalation workers started")
	return nil
}

func (svc *EscalationService) Shutdown() {
	svc.StopWorkers()
}

func (svc *EscalationService) init(securityLog *SecurityLogService, blocklist *BlockedIPService, redis *RedisService, cfg EscalationConfig) {
	defaults := DefaultEscalationConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaults.BlockDuration
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaults.JobTimeout
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaults.DedupeTTL
	}

	svc.cfg = cfg
	svc.securityLog = securityLog
	svc.blocklist = blocklist
	svc.redis = redis
	svc.queue = make(chan Violation, cfg.QueueSize)
	svc.stop = make(chan struct{})
	svc.inflight = make(map[string]struct{})
	svc.dropWarn = rate.NewLimiter(rate.Every(10*time.Second), 1)
}

func (svc *EscalationService) StartWorkers() {
	for i := 0; i < svc.cfg.Workers; i++ {
		svc.wg.Add(1)
		go svc.worker()
	}
}

// StopWorkers waits for in-progress jobs. Violations still queued are
// dropped; the durable blocklist does not depend on them.
func (svc *EscalationService) StopWorkers() {
	svc.once.Do(func() {
		if svc.stop != nil {
			close(svc.stop)
		}
	})
	svc.wg.Wait()
}

// Enqueue hands a violation to the workers without blocking. It returns
// false if the queue is full.
func (svc *EscalationService) Enqueue(v Violation) bool {
	select {
	case svc.queue <- v:
		return true
	default:
		escalationDroppedTotal.Inc()
		if svc.dropWarn.Allow() {
			log.WithFields(log.Fields{"ip": v.IP, "policy": v.Policy}).Warn("Escalation queue full, dropping violation")
		}
		return false
	}
}

func (svc *EscalationService) worker() {
	defer svc.wg.Done()

	for {
		select {
		case v := <-svc.queue:
			ctx, cancel := context.WithTimeout(context.Background(), svc.cfg.JobTimeout)
			if err := svc.Handle(ctx, v); err != nil {
				log.WithFields(log.Fields{
					"ip":    v.IP,
					"error": err.Error(),
				}).Warn("Escalation failed")
			}
			cancel()
		case <-svc.stop:
			return
		}
	}
}

// Handle records the violation and escalates to an automated block once the
// window count passes the threshold. Losing a creation race is not an error.
func (svc *EscalationService) Handle(ctx context.Context, v Violation) error {
	if v.OccurredAt.IsZero() {
		v.OccurredAt = time.Now().UTC()
	}

	metadata := map[string]interface{}{
		"path":         v.Path,
		"method":       v.Method,
		"user_agent":   v.UserAgent,
		"policy":       v.Policy,
		"window_count": v.WindowCount,
		"limit":        v.Limit,
	}
	if v.BlockedUntil != nil {
		metadata["blocked_until"] = v.BlockedUntil.UTC().Format(time.RFC3339)
	}

	svc.securityLog.Record(ctx, SecurityEvent{
		EventType:   model.EventRateLimitExceeded,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("Rate limit exceeded on %s %s (%d/%d)", v.Method, v.Path, v.WindowCount, v.Limit),
		IPAddress:   v.IP,
		Metadata:    metadata,
	})

	if v.IP == "" || v.WindowCount <= svc.cfg.Threshold {
		return nil
	}

	acquired, release := svc.acquire(ctx, v.IP)
	if !acquired {
		return nil
	}
	defer release()

	active, err := svc.blocklist.HasActiveBlock(ctx, v.IP)
	if err != nil {
		svc.forget(ctx, v.IP)
		return err
	}
	if active {
		return nil
	}

	description := fmt.Sprintf("Automated block: %d requests to %s within one %s window", v.WindowCount, v.Path, v.Policy)
	record, created, err := svc.blocklist.AutoBlock(ctx, v.IP, description, svc.cfg.BlockDuration)
	if err != nil {
		svc.forget(ctx, v.IP)
		return err
	}
	if !created {
		return nil
	}

	log.WithFields(log.Fields{
		"ip":         record.IPAddress,
		"expires_at": record.ExpiresAt,
		"count":      v.WindowCount,
	}).Warn("IP automatically blocked")

	svc.securityLog.Record(ctx, SecurityEvent{
		EventType:   model.EventIPBlocked,
		Severity:    model.SeverityHigh,
		Description: fmt.Sprintf("IP %s automatically blocked for %s", record.IPAddress, svc.cfg.BlockDuration),
		IPAddress:   record.IPAddress,
		Metadata: map[string]interface{}{
			"reason":       string(record.Reason),
			"window_count": v.WindowCount,
			"threshold":    svc.cfg.Threshold,
			"expires_at":   record.ExpiresAt,
		},
	})
	return nil
}

// acquire claims the right to escalate ip, first in-process and then across
// instances through Redis when it is configured. Redis errors fall back to
// the in-process claim; the unique index still arbitrates.
func (svc *EscalationService) acquire(ctx context.Context, ip string) (bool, func()) {
	svc.inflightMu.Lock()
	if _, busy := svc.inflight[ip]; busy {
		svc.inflightMu.Unlock()
		return false, nil
	}
	svc.inflight[ip] = struct{}{}
	svc.inflightMu.Unlock()

	release := func() {
		svc.inflightMu.Lock()
		delete(svc.inflight, ip)
		svc.inflightMu.Unlock()
	}

	if svc.redis.Enabled() {
		ok, err := svc.redis.AcquireOnce(ctx, escalationKey(ip), svc.cfg.DedupeTTL)
		if err != nil {
			log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Debug("Escalation dedupe unavailable")
		} else if !ok {
			release()
			return false, nil
		}
	}

	return true, release
}

// forget drops the cross-instance claim after a failed escalation so the next
// violation, on any instance, can retry.
func (svc *EscalationService) forget(ctx context.Context, ip string) {
	if !svc.redis.Enabled() {
		return
	}
	if err := svc.redis.Release(ctx, escalationKey(ip)); err != nil {
		log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Debug("Failed to release escalation claim")
	}
}

func escalationKey(ip string) string {
	return "escalation:" + ip
}
