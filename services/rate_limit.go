package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
)

const RATE_LIMIT_SVC = "rate_limit_svc"

// BlockChecker is the durable blocklist as seen by the admission path.
type BlockChecker interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// ViolationNotifier receives over-limit events. Enqueue must not block.
type ViolationNotifier interface {
	Enqueue(v Violation) bool
}

// requestMeta is what a violation carries besides the window state.
type requestMeta struct {
	ip        string
	path      string
	method    string
	userAgent string
}

// RateLimitService owns the in-memory window table. One mutex guards the
// whole table so the increment-and-compare step cannot interleave.
type RateLimitService struct {
	appContext.DefaultService

	mutex       sync.Mutex
	records     map[string]*model.RateRecord
	evictions   int64
	lastSweepAt *time.Time

	now             func() time.Time
	classify        func(path, method string) model.RateLimitPolicy
	blocklist       BlockChecker
	notifier        ViolationNotifier
	cleanupInterval time.Duration

	closed chan struct{}
	once   sync.Once
}

func NewRateLimitService(blocklist BlockChecker, notifier ViolationNotifier, now func() time.Time) *RateLimitService {
	svc := &RateLimitService{}
	svc.init(blocklist, notifier, now)
	return svc
}

func (svc *RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.cleanupInterval = shared.GetEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	blocklist := svc.Service(BLOCKED_IP_SVC).(*BlockedIPService)
	escalation := svc.Service(ESCALATION_SVC).(*EscalationService)
	svc.init(blocklist, escalation, nil)

	go svc.startCleanupJob(svc.cleanupInterval)
	return nil
}

func (svc *RateLimitService) Shutdown() {
	svc.once.Do(func() {
		close(svc.closed)
	})
}

func (svc *RateLimitService) init(blocklist BlockChecker, notifier ViolationNotifier, now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	svc.records = make(map[string]*model.RateRecord)
	svc.now = now
	svc.classify = ClassifyPolicy
	svc.blocklist = blocklist
	svc.notifier = notifier
	svc.closed = make(chan struct{})
	if svc.cleanupInterval <= 0 {
		svc.cleanupInterval = 5 * time.Minute
	}
}

// RateKey partitions window state by client and normalized route.
func RateKey(ip, path string) string {
	return ip + "|" + shared.NormalizePath(path)
}

// ==================== CORE RATE LIMITING LOGIC ====================

// CheckAndIncrement counts one request against key under policy. Denials
// that start a block are forwarded to the violation notifier.
func (svc *RateLimitService) CheckAndIncrement(key string, policy model.RateLimitPolicy) dto.RateLimitInfo {
	ip, path, _ := strings.Cut(key, "|")
	return svc.admit(key, policy, requestMeta{ip: ip, path: path})
}

func (svc *RateLimitService) admit(key string, policy model.RateLimitPolicy, meta requestMeta) dto.RateLimitInfo {
	info, violation := svc.checkAndIncrement(key, policy, meta)

	outcome := "allowed"
	if !info.Allowed {
		outcome = "denied"
	}
	admissionDecisionsTotal.WithLabelValues(policy.Name, outcome).Inc()

	if violation != nil && svc.notifier != nil {
		svc.notifier.Enqueue(*violation)
	}
	return info
}

func (svc *RateLimitService) checkAndIncrement(key string, policy model.RateLimitPolicy, meta requestMeta) (dto.RateLimitInfo, *Violation) {
	now := svc.now()

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	record, exists := svc.records[key]
	if !exists {
		record = &model.RateRecord{Key: key}
		svc.records[key] = record
		rateLimitEntries.Set(float64(len(svc.records)))
	}

	if !now.Before(record.WindowResetAt) {
		record.WindowCount = 0
		record.WindowResetAt = now.Add(policy.Window)
	}
	if record.Blocked && !now.Before(record.BlockExpiresAt) {
		record.Blocked = false
		record.BlockExpiresAt = time.Time{}
	}

	info := dto.RateLimitInfo{
		Policy:    policy.Name,
		Limit:     policy.MaxRequests,
		ResetTime: record.WindowResetAt,
	}

	if record.Blocked {
		blockedUntil := record.BlockExpiresAt
		info.ResetTime = blockedUntil
		info.RetryAfter = clampRetry(blockedUntil.Sub(now))
		info.BlockedUntil = &blockedUntil
		return info, nil
	}

	record.WindowCount++
	if record.WindowCount <= policy.MaxRequests {
		info.Allowed = true
		info.Remaining = policy.MaxRequests - record.WindowCount
		return info, nil
	}

	info.RetryAfter = clampRetry(record.WindowResetAt.Sub(now))

	violation := &Violation{
		IP:          meta.ip,
		Path:        meta.path,
		Method:      meta.method,
		UserAgent:   meta.userAgent,
		Policy:      policy.Name,
		WindowCount: record.WindowCount,
		Limit:       policy.MaxRequests,
		OccurredAt:  now,
	}

	if policy.BlockDuration > 0 {
		record.Blocked = true
		record.BlockExpiresAt = now.Add(policy.BlockDuration)
		blockedUntil := record.BlockExpiresAt
		info.BlockedUntil = &blockedUntil
		violation.BlockedUntil = &blockedUntil
	}

	return info, violation
}

func clampRetry(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// Middleware classifies the request, consults the durable blocklist and then
// the in-memory window. The blocklist fails closed.
func (svc *RateLimitService) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Values outlive the request on the escalation queue, so none may
		// alias fasthttp's reused buffers.
		ip := utils.CopyString(shared.ClientIP(c))
		path := utils.CopyString(shared.NormalizePath(c.Path()))
		method := utils.CopyString(c.Method())
		policy := svc.classify(path, method)

		if svc.blocklist != nil {
			blocked, err := svc.blocklist.IsBlocked(c.UserContext(), ip)
			if err != nil {
				log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Warn("IP block check failed, denying request")
				admissionDecisionsTotal.WithLabelValues(policy.Name, "gate_error").Inc()
				return shared.ResponseError(c, shared.NewAuthorizationError(err, "Unable to verify IP status"))
			}
			if blocked {
				admissionDecisionsTotal.WithLabelValues(policy.Name, "ip_blocked").Inc()
				return shared.ResponseError(c, shared.NewIPBlockedError(ip))
			}
			c.Locals(shared.IPGateResult, true)
		}

		info := svc.admit(RateKey(ip, path), policy, requestMeta{
			ip:        ip,
			path:      path,
			method:    method,
			userAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		})

		svc.addRateLimitHeaders(c, info)

		if !info.Allowed {
			return shared.ResponseError(c, shared.NewRateLimitExceededError(policy.Message, info.RetryAfterSeconds()))
		}

		return c.Next()
	}
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info dto.RateLimitInfo) {
	c.Set(shared.HeaderRateLimitLimit, strconv.Itoa(info.Limit))
	c.Set(shared.HeaderRateLimitRemaining, strconv.Itoa(info.Remaining))
	c.Set(shared.HeaderRateLimitReset, strconv.FormatInt(info.ResetTime.Unix(), 10))

	if !info.Allowed {
		c.Set(shared.HeaderRetryAfter, strconv.Itoa(info.RetryAfterSeconds()))
	}
}

// ==================== ADMIN FUNCTIONS ====================

func (svc *RateLimitService) Stats() dto.RateLimitStats {
	now := svc.now()

	svc.mutex.Lock()
	stats := dto.RateLimitStats{
		Entries:        len(svc.records),
		TotalEvictions: svc.evictions,
		Timestamp:      now,
	}
	for _, record := range svc.records {
		if record.Blocked && now.Before(record.BlockExpiresAt) {
			stats.BlockedEntries++
		}
	}
	if svc.lastSweepAt != nil {
		at := *svc.lastSweepAt
		stats.LastSweepAt = &at
	}
	svc.mutex.Unlock()

	stats.Policies = PolicyTable()
	return stats
}

// ResetIP drops every window held for ip and returns how many were removed.
func (svc *RateLimitService) ResetIP(ip string) int {
	prefix := shared.CanonicalIP(ip) + "|"

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	removed := 0
	for key := range svc.records {
		if strings.HasPrefix(key, prefix) {
			delete(svc.records, key)
			removed++
		}
	}
	rateLimitEntries.Set(float64(len(svc.records)))
	return removed
}

// ==================== BACKGROUND JOBS ====================

// Sweep evicts records whose window and block have both lapsed.
func (svc *RateLimitService) Sweep() int {
	now := svc.now()

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	evicted := 0
	for key, record := range svc.records {
		if record.Expired(now) {
			delete(svc.records, key)
			evicted++
		}
	}

	svc.evictions += int64(evicted)
	svc.lastSweepAt = &now
	rateLimitEvictionsTotal.Add(float64(evicted))
	rateLimitEntries.Set(float64(len(svc.records)))
	return evicted
}

func (svc *RateLimitService) startCleanupJob(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := svc.Sweep(); n > 0 {
				log.WithField("evicted", n).Debug("Rate limit cleanup completed")
			}
		case <-svc.closed:
			return
		}
	}
}
