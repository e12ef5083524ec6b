package geo

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the best guess of the visitor address: the first
// X-Forwarded-For entry, then X-Real-IP, then the host part of remoteAddr.
// It returns "" when none of them carries a value.
func ClientIP(header http.Header, remoteAddr string) string {
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// IsLoopback reports whether ip is a loopback address such as 127.0.0.1 or ::1.
func IsLoopback(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}
