package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/metrics"
)

func TestInitAndMount(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := configs.MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
		Labels:  map[string]string{"service": "sourcelens-test"},
	}

	if err := metrics.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}

	// 第二次调用不重复注册
	if err := metrics.Init(cfg); err != nil {
		t.Fatalf("second init: %v", err)
	}

	metrics.ResolveTotal.WithLabelValues(metrics.ResultMapped).Inc()
	metrics.KVCacheRequests.WithLabelValues("sl:pos:", "hit").Inc()

	engine := gin.New()
	metrics.Mount(cfg, engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`sourcemap_resolve_total{result="mapped",service="sourcelens-test"} 1`,
		`kv_cache_requests_total{outcome="hit",prefix="sl:pos:",service="sourcelens-test"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %s", want)
		}
	}

	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered while disabled")
	}
}

func TestMountDisabled(t *testing.T) {
	engine := gin.New()
	metrics.Mount(configs.MetricsConfig{}, engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
