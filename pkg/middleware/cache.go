package middleware

import (
	"bytes"
	"context"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/sourcelens/pkg/cache"
)

const (
	defaultCacheTTL      = 30 * time.Second
	defaultCacheMaxBytes = 1 << 20
	cacheBypassHeader    = "X-Cache-Bypass"
	cacheStatusHeader    = "X-Cache"
	globalCacheScope     = "_"
)

// CacheConfig 响应缓存配置.
type CacheConfig struct {
	Cache        *appcache.Cache
	TTL          time.Duration
	MaxBodyBytes int // 超过该大小的响应不缓存，0 表示不限
	// VaryHeaders 参与缓存键的请求头
	VaryHeaders []string
}

// DefaultCacheConfig 30 秒 TTL，只缓存 1MB 以内的响应.
func DefaultCacheConfig(c *appcache.Cache) CacheConfig {
	return CacheConfig{Cache: c, TTL: defaultCacheTTL, MaxBodyBytes: defaultCacheMaxBytes}
}

// cachedResponse 写入 KV 的响应.
type cachedResponse struct {
	Status      int    `json:"s"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"b,omitempty"`
	ETag        string `json:"e"`
	StoredAt    int64  `json:"t"`
}

// CacheMiddleware 缓存 GET/HEAD 的 200 响应，版本列表、历史等只读接口使用它.
// 键为 "<projectId>:<hash>"，写接口可以只失效一个项目；请求带 X-Cache-Bypass 时直接穿透.
// 命中时支持 If-None-Match 返回 304，响应头 X-Cache 标记 HIT 或 MISS.
//
//	c := cache.NewCache(kvStore, cache.WithPrefix("sl:rc:"))
//	group.GET("/versions", middleware.CacheMiddleware(middleware.DefaultCacheConfig(c)), h.ListVersions)
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	if cfg.Cache == nil {
		panic("CacheMiddleware: Cache cannot be nil")
	}

	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}

	return func(c *gin.Context) {
		if (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) ||
			c.GetHeader(cacheBypassHeader) != "" {
			c.Next()
			return
		}

		key := responseKey(c, cfg.VaryHeaders)

		if entry, err := appcache.Get[cachedResponse](c.Request.Context(), cfg.Cache, key); err == nil {
			replay(c, entry)
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer, limit: cfg.MaxBodyBytes}
		c.Writer = w
		c.Header(cacheStatusHeader, "MISS")

		c.Next()

		if c.Writer.Status() != http.StatusOK || w.overflow || noStore(c.Writer.Header()) {
			return
		}

		body := bytes.Clone(w.buf.Bytes())
		entry := cachedResponse{
			Status:      http.StatusOK,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        body,
			ETag:        `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`,
			StoredAt:    time.Now().UnixNano(),
		}

		go func(ctx context.Context) {
			_ = appcache.Set(ctx, cfg.Cache, key, entry, cfg.TTL)
		}(context.WithoutCancel(c.Request.Context()))
	}
}

// InvalidateCache 失效一个项目的缓存响应，projectID 为空时清空全部.
func InvalidateCache(ctx context.Context, c *appcache.Cache, projectID string) error {
	if projectID == "" {
		return c.Clear(ctx)
	}

	_, err := c.DeleteMatching(ctx, projectID+":*")

	return err
}

// responseKey 由实际路径、排序后的 query 与 vary 头计算.
func responseKey(c *gin.Context, vary []string) string {
	var b strings.Builder

	b.WriteString(c.Request.URL.Path)

	q := c.Request.URL.Query()
	for _, k := range slices.Sorted(maps.Keys(q)) {
		b.WriteString("&" + k + "=" + strings.Join(q[k], ","))
	}

	for _, h := range vary {
		b.WriteString("|" + h + "=" + c.GetHeader(h))
	}

	scope := c.Param("projectId")
	if scope == "" {
		scope = globalCacheScope
	}

	return scope + ":" + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

func replay(c *gin.Context, e cachedResponse) {
	h := c.Writer.Header()
	h.Set("ETag", e.ETag)
	h.Set("Age", strconv.FormatInt(int64(time.Since(time.Unix(0, e.StoredAt)).Seconds()), 10))
	h.Set(cacheStatusHeader, "HIT")

	if c.GetHeader("If-None-Match") == e.ETag {
		c.AbortWithStatus(http.StatusNotModified)
		return
	}

	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}

	c.Status(e.Status)

	if c.Request.Method != http.MethodHead {
		_, _ = c.Writer.Write(e.Body)
	}

	c.Abort()
}

func noStore(h http.Header) bool {
	cc := strings.ToLower(h.Get("Cache-Control"))
	return strings.Contains(cc, "no-store") || strings.Contains(cc, "private")
}

// captureWriter 在写出响应的同时保留一份副本，超过 limit 后放弃缓存.
type captureWriter struct {
	gin.ResponseWriter

	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}

	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
