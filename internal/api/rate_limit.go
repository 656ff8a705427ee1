package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients 超过后清空限流表, 防止客户端地址过多时无限增长
const maxTrackedClients = 10000

// clientLimiters 按客户端地址分配令牌桶
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (l *clientLimiters) get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[client]; ok {
		return limiter
	}
	if len(l.limiters) >= maxTrackedClients {
		l.limiters = make(map[string]*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.limiters[client] = limiter
	return limiter
}

// RateLimitMiddleware 按客户端地址限流
// 健康检查和指标端点不受限制, 避免探活和采集被误伤
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiters := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	retryAfter := "1"
	if rps > 0 && rps < 1 {
		retryAfter = strconv.Itoa(int(1/rps + 0.5))
	}

	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics":
			c.Next()
			return
		}

		client := c.ClientIP()
		if !limiters.get(client).Allow() {
			c.Header("Retry-After", retryAfter)
			Error(c, http.StatusTooManyRequests, "rate limit exceeded", "client "+client)
			c.Abort()
			return
		}
		c.Next()
	}
}
