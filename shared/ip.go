package shared

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP resolves the caller address: first X-Forwarded-For entry, then
// X-Real-IP, then the socket address. Header values that do not parse as an
// IP are skipped.
func ClientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(ClientIPKey).(string); ok && ip != "" {
		return ip
	}

	ip := resolveClientIP(c.Get(fiber.HeaderXForwardedFor), c.Get("X-Real-IP"), c.Context().RemoteAddr().String())
	c.Locals(ClientIPKey, ip)
	return ip
}

func resolveClientIP(forwarded, realIP, remoteAddr string) string {
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ValidIP(ip) {
			return CanonicalIP(ip)
		}
	}

	if realIP = strings.TrimSpace(realIP); ValidIP(realIP) {
		return CanonicalIP(realIP)
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return CanonicalIP(remoteAddr)
	}
	return CanonicalIP(host)
}

// CanonicalIP normalizes textual forms (IPv4-mapped IPv6, zero-padded v6) so
// the same client always maps to one key. Unparseable input is returned as is.
func CanonicalIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return addr.Unmap().WithZone("").String()
}

// ValidIP reports whether raw parses as an IPv4 or IPv6 address.
func ValidIP(raw string) bool {
	_, err := netip.ParseAddr(strings.TrimSpace(raw))
	return err == nil
}

// NormalizePath lowercases the path and strips a trailing slash so
// "/Admin/Tools/" and "/admin/tools" share one counter.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
