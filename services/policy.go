package services

import (
	"sort"
	"strings"
	"time"

	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
)

const (
	AuthPathPrefix  = "/api/v1/auth"
	AdminPathPrefix = "/api/v1/admin"
)

var (
	AuthPolicy = model.RateLimitPolicy{
		Name:          "auth",
		Window:        15 * time.Minute,
		MaxRequests:   5,
		BlockDuration: 30 * time.Minute,
		Message:       "Too many authentication attempts, please try again later",
	}

	AdminWritePolicy = model.RateLimitPolicy{
		Name:          "admin_write",
		Window:        time.Minute,
		MaxRequests:   30,
		BlockDuration: 5 * time.Minute,
		Message:       "Too many admin write requests, please slow down",
	}

	AdminReadPolicy = model.RateLimitPolicy{
		Name:          "admin_read",
		Window:        time.Minute,
		MaxRequests:   100,
		BlockDuration: 2 * time.Minute,
		Message:       "Too many admin requests, please slow down",
	}

	DefaultPolicy = model.RateLimitPolicy{
		Name:          "default",
		Window:        time.Minute,
		MaxRequests:   200,
		BlockDuration: time.Minute,
		Message:       "Too many requests, please try again later",
	}
)

type policyRule struct {
	prefix string
	method string // empty matches any method
	policy model.RateLimitPolicy
}

var policyRules = compilePolicyRules([]policyRule{
	{prefix: AuthPathPrefix, policy: AuthPolicy},
	{prefix: AdminPathPrefix, policy: AdminReadPolicy},
	{prefix: AdminPathPrefix, method: "POST", policy: AdminWritePolicy},
	{prefix: AdminPathPrefix, method: "PUT", policy: AdminWritePolicy},
	{prefix: AdminPathPrefix, method: "PATCH", policy: AdminWritePolicy},
	{prefix: AdminPathPrefix, method: "DELETE", policy: AdminWritePolicy},
})

// compilePolicyRules orders rules so the first match is the answer: longer
// prefixes first, and for one prefix the method rule before the generic one.
func compilePolicyRules(rules []policyRule) []policyRule {
	sorted := make([]policyRule, len(rules))
	copy(sorted, rules)
	for i := range sorted {
		sorted[i].prefix = shared.NormalizePath(sorted[i].prefix)
		sorted[i].method = strings.ToUpper(sorted[i].method)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].prefix) != len(sorted[j].prefix) {
			return len(sorted[i].prefix) > len(sorted[j].prefix)
		}
		return sorted[i].method != "" && sorted[j].method == ""
	})
	return sorted
}

func (r policyRule) matches(path, method string) bool {
	if r.method != "" && r.method != method {
		return false
	}
	return path == r.prefix || strings.HasPrefix(path, r.prefix+"/")
}

// ClassifyPolicy maps a request to its rate-limit policy. It is a pure
// function of path and method.
func ClassifyPolicy(path, method string) model.RateLimitPolicy {
	path = shared.NormalizePath(path)
	method = strings.ToUpper(method)

	for _, rule := range policyRules {
		if rule.matches(path, method) {
			return rule.policy
		}
	}
	return DefaultPolicy
}

// PolicyTable describes the compiled rules for the stats endpoint.
func PolicyTable() []dto.RateLimitPolicyInfo {
	table := make([]dto.RateLimitPolicyInfo, 0, len(policyRules)+1)
	for _, rule := range policyRules {
		table = append(table, policyInfo(rule.prefix, rule.method, rule.policy))
	}
	return append(table, policyInfo("/", "", DefaultPolicy))
}

func policyInfo(prefix, method string, p model.RateLimitPolicy) dto.RateLimitPolicyInfo {
	return dto.RateLimitPolicyInfo{
		Name:          p.Name,
		PathPrefix:    prefix,
		Method:        method,
		MaxRequests:   p.MaxRequests,
		WindowSeconds: int(p.Window / time.Second),
		BlockSeconds:  int(p.BlockDuration / time.Second),
	}
}
