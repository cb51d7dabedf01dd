package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// ProjectHeader 错误上报 SDK 携带项目 ID 的请求头.
const ProjectHeader = "X-Project-Id"

// RateLimitMiddleware 令牌桶限流，配置了 Paths 时只作用于这些前缀，默认只保护错误上报入口.
// Key 决定维度：global、ip、project（路径参数或 X-Project-Id）、header:<Name>.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	lim := newLimiters(cfg)

	return func(c *gin.Context) {
		if len(cfg.Paths) > 0 && !hasPathPrefix(c.Request.URL.Path, cfg.Paths) {
			c.Next()
			return
		}

		l := lim.get(c)

		r := l.Reserve()
		if d := r.Delay(); d > 0 {
			r.Cancel()

			c.Header("Retry-After", strconv.Itoa(int((d+time.Second-1)/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

			return
		}

		c.Next()
	}
}

// limiters global 模式只有一个桶，其余模式按键保存，闲置超过 IdleTTL 或超出 MaxKeys 的被淘汰.
type limiters struct {
	cfg    configs.RateLimitConfig
	mode   string
	global *rate.Limiter

	mu   sync.Mutex
	byID *expirable.LRU[string, *rate.Limiter]
}

func newLimiters(cfg configs.RateLimitConfig) *limiters {
	l := &limiters{cfg: cfg, mode: strings.ToLower(strings.TrimSpace(cfg.Key))}

	if l.mode == "" || l.mode == "global" {
		l.global = l.newLimiter()
	} else {
		l.byID = expirable.NewLRU[string, *rate.Limiter](max(cfg.MaxKeys, 1), nil, cfg.IdleTTL)
	}

	return l
}

func (l *limiters) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(l.cfg.RPS), max(l.cfg.Burst, 1))
}

func (l *limiters) get(c *gin.Context) *rate.Limiter {
	if l.global != nil {
		return l.global
	}

	key := l.key(c)

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.byID.Get(key)
	if !ok {
		lim = l.newLimiter()
		l.byID.Add(key, lim)
	}

	return lim
}

// key 取不到指定维度时回退到客户端 IP.
func (l *limiters) key(c *gin.Context) string {
	switch {
	case strings.HasPrefix(l.mode, "header:"):
		if v := c.GetHeader(strings.TrimPrefix(l.mode, "header:")); v != "" {
			return "h:" + v
		}
	case l.mode == "project":
		id := c.Param("projectId")
		if id == "" {
			id = c.GetHeader(ProjectHeader)
		}

		if id != "" {
			return "p:" + id
		}
	}

	return "ip:" + c.ClientIP()
}
