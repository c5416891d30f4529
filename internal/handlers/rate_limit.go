package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minClientIdle   = 10 * time.Minute
	cleanupInterval = time.Minute
)

// ClientLimiter rate limits requests per client IP. Clients idle longer than
// the idle window are forgotten. X-Forwarded-For is only honoured when the
// connection comes from a trusted proxy.
type ClientLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	trusted []*net.IPNet
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimit

	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perSecond requests per client with the given
// burst. trustedProxies holds IPs or CIDRs. A non-positive perSecond returns
// nil, which allows everything.
func NewClientLimiter(perSecond float64, burst int, trustedProxies []string) (*ClientLimiter, error) {
	if perSecond <= 0 {
		return nil, nil
	}
	if burst < 1 {
		burst = 1
	}

	trusted, err := parseProxies(trustedProxies)
	if err != nil {
		return nil, err
	}

	// an entry may only be dropped once its bucket would have refilled
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < minClientIdle {
		idle = minClientIdle
	}

	l := &ClientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		trusted: trusted,
		now:     time.Now,
		clients: make(map[string]*clientLimit),
		stop:    make(chan struct{}),
	}
	go l.cleanupRoutine()

	return l, nil
}

// Allow reports whether the client behind r may proceed
func (l *ClientLimiter) Allow(r *http.Request) bool {
	if l == nil {
		return true
	}

	ip := l.clientIP(r)
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimit{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Len reports the number of tracked clients
func (l *ClientLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup routine
func (l *ClientLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *ClientLimiter) cleanupRoutine() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup forgets clients idle for longer than the idle window
func (l *ClientLimiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idle {
			delete(l.clients, ip)
		}
	}
}

// clientIP is the remote address, unless that is a trusted proxy: then the
// nearest untrusted X-Forwarded-For hop is used.
func (l *ClientLimiter) clientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !l.isTrusted(remote) {
		return remote
	}

	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return remote
	}

	hops := strings.Split(fwd, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !l.isTrusted(hop) || i == 0 {
			return hop
		}
	}
	return remote
}

func (l *ClientLimiter) isTrusted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range l.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseProxies(proxies []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			p = fmt.Sprintf("%s/%d", p, bits)
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
