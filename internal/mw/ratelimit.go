package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc 从请求中提取限速键。
type KeyFunc func(c *gin.Context) string

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Limiter 按键维护一组令牌桶，闲置的桶由后台 GC 回收。
type Limiter struct {
	mu   sync.Mutex
	m    map[string]*bucket
	r    rate.Limit
	b    int
	ttl  time.Duration
	stop chan struct{}
}

func NewLimiter(r rate.Limit, burst int, ttl time.Duration) *Limiter {
	return &Limiter{m: make(map[string]*bucket), r: r, b: burst, ttl: ttl, stop: make(chan struct{})}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	bk, ok := l.m[key]
	if ok {
		bk.ts = time.Now()
		return bk.lim
	}
	lim := rate.NewLimiter(l.r, l.b)
	l.m[key] = &bucket{lim: lim, ts: time.Now()}
	return lim
}

func (l *Limiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for k, v := range l.m {
				if now.Sub(v.ts) > l.ttl {
					delete(l.m, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop 停止 GC goroutine，用于优雅停服。
func (l *Limiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// RateLimit 返回基于 IP+路由的令牌桶限速中间件。
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	return RateLimitKeyed(r, burst, func(c *gin.Context) string {
		key := clientIP(c.Request.RemoteAddr) + "|" + c.FullPath()
		if c.FullPath() == "" {
			key = clientIP(c.Request.RemoteAddr) + "|" + c.Request.URL.Path
		}
		return key
	})
}

// RateLimitKeyed 返回用自定义键限速的中间件；
// 认证接口用纯 IP 键配小 burst，能压住撞库尝试。
func RateLimitKeyed(r rate.Limit, burst int, keyFn KeyFunc) gin.HandlerFunc {
	l := NewLimiter(r, burst, 2*time.Minute)
	go l.gc()
	return func(c *gin.Context) {
		if !l.get(keyFn(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// ClientIPKey 是纯 IP 的限速键。
func ClientIPKey(c *gin.Context) string {
	return clientIP(c.Request.RemoteAddr)
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
