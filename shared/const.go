package shared

// Fiber locals keys.
const (
	UserID       = "user_id"
	CurrentUser  = "current_user"
	ClientIPKey  = "client_ip"
	IPGateResult = "ip_gate_checked"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)
