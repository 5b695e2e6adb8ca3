package gate

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDLocal is the fiber local an auth layer sets for authenticated callers.
const UserIDLocal = "userId"

// ClientKey identifies the caller for rate limiting: the authenticated user when
// known, otherwise the client address as reported by the proxy chain.
func ClientKey(c *fiber.Ctx) string {
	if userID, ok := c.Locals(UserIDLocal).(string); ok && strings.TrimSpace(userID) != "" {
		return "user:" + strings.TrimSpace(userID)
	}
	return "ip:" + clientIP(c)
}

func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if ip := strings.TrimSpace(c.IP()); ip != "" {
		return ip
	}
	return "unknown"
}
