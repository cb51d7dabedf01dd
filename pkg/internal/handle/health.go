package handle

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	appctx "github.com/yeisme/sourcelens/pkg/context"
)

const (
	timeout        = 2 * time.Second
	healthProbeKey = "sl:health:probe"
)

var errDisabled = errors.New("not configured")

// probe 检查一个存储组件，未配置时返回 errDisabled.
type probe func(ctx context.Context) error

func probeDB(ctx context.Context) error {
	dbc := appctx.GetDBClient(ctx)
	if dbc == nil || dbc.DB == nil {
		return errDisabled
	}

	return dbc.Ping(ctx)
}

func probeS3(ctx context.Context) error {
	s3c := appctx.GetS3Client(ctx)
	if s3c == nil || s3c.Client == nil {
		return errDisabled
	}

	return s3c.HealthCheck(ctx)
}

func probeMQ(ctx context.Context) error {
	if appctx.GetMQClient(ctx) == nil {
		return errDisabled
	}

	return nil
}

// probeKV 写入并读回一个短期探测键.
func probeKV(ctx context.Context) error {
	kvc := appctx.GetKVClient(ctx)
	if kvc == nil || kvc.KVStore == nil {
		return errDisabled
	}

	if err := kvc.Set(ctx, healthProbeKey, []byte("ok"), timeout); err != nil {
		return err
	}

	_, err := kvc.Get(ctx, healthProbeKey)

	return err
}

var probes = map[string]probe{
	"db": probeDB,
	"kv": probeKV,
	"mq": probeMQ,
	"s3": probeS3,
}

// componentHealth 单个组件的检查接口，未配置也视为不可用.
func componentHealth(name string) gin.HandlerFunc {
	p := probes[name]

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		body := gin.H{"component": name, "status": "ok"}
		if name == "mq" {
			if mqc := appctx.GetMQClient(ctx); mqc != nil {
				body["type"] = mqc.Type()
			}
		}

		if err := p(ctx); err != nil {
			msg := err.Error()
			if errors.Is(err, errDisabled) {
				msg = name + " client not initialized"
			}

			c.JSON(http.StatusServiceUnavailable, gin.H{"component": name, "status": "unhealthy", "error": msg})

			return
		}

		c.JSON(http.StatusOK, body)
	}
}

var (
	HealthDB = componentHealth("db") // HealthDB 数据库健康检查.
	HealthKV = componentHealth("kv") // HealthKV 键值存储健康检查.
	HealthMQ = componentHealth("mq") // HealthMQ 消息队列健康检查.
	HealthS3 = componentHealth("s3") // HealthS3 对象存储健康检查.
)

// Health 并发检查全部组件，未配置的组件标记为 disabled 且不影响整体状态.
//
//	@Summary		服务健康检查
//	@Tags			健康检查
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		503	{object}	map[string]any	"存在不可用组件"
//	@Router			/api/v1/health [get]
func Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		components = make(map[string]string, len(probes))
		healthy    = true
	)

	g, gctx := errgroup.WithContext(ctx)

	for name, p := range probes {
		g.Go(func() error {
			status := "ok"

			if err := p(gctx); errors.Is(err, errDisabled) {
				status = "disabled"
			} else if err != nil {
				status = err.Error()
			}

			mu.Lock()
			components[name] = status
			if status != "ok" && status != "disabled" {
				healthy = false
			}
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"status": status, "components": components})
}
