package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	maxLimiters = 10000
	limiterIdle = 10 * time.Minute
)

// clientLimiter keeps one token bucket per client address
type clientLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// allow takes one token from client's bucket
func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[client]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			l.pruneLocked(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// pruneLocked drops idle buckets. If every bucket is recent it starts over.
func (l *clientLimiter) pruneLocked(now time.Time) {
	for client, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.limiters, client)
		}
	}
	if len(l.limiters) >= maxLimiters {
		l.limiters = make(map[string]*limiterEntry)
	}
}

// accessList admits clients by address. Deny rules win.
type accessList struct {
	allowed []*net.IPNet
	denied  []*net.IPNet
}

func newAccessList(allowed, denied []string) (*accessList, error) {
	a := &accessList{}
	var err error
	if a.allowed, err = parseNets(allowed); err != nil {
		return nil, err
	}
	if a.denied, err = parseNets(denied); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *accessList) admits(client string) bool {
	ip := net.ParseIP(client)
	if ip == nil {
		return false
	}
	for _, n := range a.denied {
		if n.Contains(ip) {
			return false
		}
	}
	if len(a.allowed) == 0 {
		return true
	}
	for _, n := range a.allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseNets turns addresses and CIDR ranges into networks. A bare address
// becomes a /32 or /128.
func parseNets(specs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(specs))
	for _, spec := range specs {
		if !strings.Contains(spec, "/") {
			ip := net.ParseIP(spec)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", spec)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", spec, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// clientAddress is the caller's address. X-Forwarded-For (first entry) and
// X-Real-IP are only believed when the peer is one of proxies.
func clientAddress(r *http.Request, proxies []*net.IPNet) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !trusted(peer, proxies) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}

func trusted(peer string, proxies []*net.IPNet) bool {
	if len(proxies) == 0 {
		return false
	}
	ip := net.ParseIP(peer)
	if ip == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// checkAccess refuses clients outside the access list with 403
func (s *Server) checkAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.access != nil {
			client := clientAddress(r, s.proxies)
			if !s.access.admits(client) {
				metrics.APIRejectedTotal.WithLabelValues("forbidden").Inc()
				s.logger.Warn().Str("client", client).Msg("access denied by IP filter")
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "access denied", Kind: "forbidden"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// limitSubmissions throttles each client with 429 once its bucket is empty
func (s *Server) limitSubmissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			client := clientAddress(r, s.proxies)
			if !s.limiter.allow(client) {
				metrics.APIRejectedTotal.WithLabelValues("rate_limited").Inc()
				s.logger.Debug().Str("client", client).Msg("submission rate limit exceeded")
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Kind: "rate_limited"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
