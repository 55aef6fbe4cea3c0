package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per identity and client IP: capacity
// requests per window, refilled evenly.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	window   time.Duration
	capacity int
	idle     time.Duration
	now      func() time.Time
}

func NewRateLimiter(window time.Duration, capacity int) *RateLimiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	if capacity <= 0 {
		capacity = 5
	}
	return &RateLimiter{
		visitors: map[string]*visitor{},
		window:   window,
		capacity: capacity,
		idle:     10 * window,
		now:      time.Now,
	}
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func userKey(c *gin.Context) string {
	return c.GetString(ContextUserIDKey) + "@" + clientIP(c)
}

// Allow takes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.visitors[key]
	if v == nil {
		l.pruneNoLock(now)
		every := l.window / time.Duration(l.capacity)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), l.capacity)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) pruneNoLock(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(userKey(c)) {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many requests"})
			return
		}
		c.Next()
	}
}
