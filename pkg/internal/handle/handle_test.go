package handle_test

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
	"github.com/yeisme/sourcelens/pkg/internal/router"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/middleware"
)

const (
	testMap       = `{"version":3,"file":"app.min.js","sources":["src/a.ts","src/b.ts"],"names":["handler"],"mappings":"AAAA,UAEI;KCKJA"}`
	minifiedStack = "TypeError: x is undefined\n    at render (app.min.js:1:10)"
)

var encodedMap = base64.StdEncoding.EncodeToString([]byte(testMap))

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type server struct {
	engine *gin.Engine
	clock  *clock
}

func newServer(t *testing.T, role middleware.Role) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := service.New(service.Deps{
		Store: store.NewMemoryStore(store.WithClock(clk.Now)),
		Now:   clk.Now,
	})

	e := gin.New()
	e.Use(middleware.RoleMiddleware(role, true))
	router.Register(e, handle.New(svc), router.Options{})

	return &server{engine: e, clock: clk}
}

func (s *server) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}

		buf.Write(data)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := sonic.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}

	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()

	if w.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
}

func (s *server) createVersion(t *testing.T, version string) *httptest.ResponseRecorder {
	t.Helper()

	return s.do(t, http.MethodPost, "/api/v1/sourcemaps/web/versions", types.CreateVersionRequest{
		ProjectID: "web",
		Version:   version,
		Files:     []types.VersionFile{{Filename: "app.min.js.map", Content: encodedMap}},
	})
}

func TestUploadListAndGet(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/sourcemaps", types.UploadSourceMapsRequest{
		ProjectID:  "web",
		SourceMaps: []types.SourceMapFile{{Filename: "app.min.js.map", Content: encodedMap, Version: "1.0.0"}},
	})
	expectStatus(t, w, http.StatusOK)

	up := decode[types.UploadSourceMapsResponse](t, w)
	if !up.Success || up.Count != 1 || up.Files[0].Content != "" {
		t.Fatalf("upload = %+v", up)
	}

	w = s.do(t, http.MethodGet, "/api/v1/sourcemaps/web", nil)
	expectStatus(t, w, http.StatusOK)

	if list := decode[types.ListSourceMapsResponse](t, w); list.Total != 1 || list.Files[0].Content != "" {
		t.Fatalf("list = %+v", list)
	}

	w = s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/app.min.js.map?version=1.0.0", nil)
	expectStatus(t, w, http.StatusOK)

	row := decode[struct {
		Content string `json:"content"`
		Version string `json:"version"`
	}](t, w)
	if row.Content != encodedMap || row.Version != "1.0.0" {
		t.Fatalf("get = %+v", row)
	}

	w = s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/app.min.js.map?version=2.0.0", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestUploadValidation(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/sourcemaps", types.UploadSourceMapsRequest{
		ProjectID:  "web",
		SourceMaps: []types.SourceMapFile{{Filename: "app.min.js.map"}},
	})
	expectStatus(t, w, http.StatusBadRequest)

	body := decode[map[string]any](t, w)
	if _, ok := body["fields"]; !ok {
		t.Fatalf("body = %v, want field errors", body)
	}
}

func TestCreateVersion(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)

	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusCreated)
	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusConflict)
	expectStatus(t, s.createVersion(t, "1.0"), http.StatusBadRequest)

	w := s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/1.0.0", nil)
	expectStatus(t, w, http.StatusOK)

	if d := decode[types.VersionDetails](t, w); d.FileCount != 1 || d.Files[0].Content != "" {
		t.Fatalf("details = %+v", d)
	}

	expectStatus(t, s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/9.9.9", nil), http.StatusNotFound)

	w = s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/suggest?currentVersion=1.0.0", nil)
	expectStatus(t, w, http.StatusOK)

	if sg := decode[types.VersionSuggestion](t, w); sg.SuggestedVersion != "1.0.1" {
		t.Fatalf("suggestion = %+v", sg)
	}
}

func TestRoleGuards(t *testing.T) {
	s := newServer(t, middleware.RoleViewer)

	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions", nil), http.StatusOK)

	w := s.do(t, http.MethodPost, "/api/v1/sourcemaps/web/versions", types.CreateVersionRequest{
		ProjectID: "web",
		Version:   "1.0.0",
		Files:     []types.VersionFile{{Filename: "app.min.js.map", Content: encodedMap}},
	}, "X-Role", "uploader")
	expectStatus(t, w, http.StatusCreated)

	batch := types.BatchCleanupRequest{ProjectID: "web", Versions: []string{"1.0.0"}, Confirm: true}
	expectStatus(t, s.do(t, http.MethodDelete, "/api/v1/sourcemaps/web/versions/batch", batch, "X-Role", "uploader"), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodDelete, "/api/v1/sourcemaps/web/versions/batch", batch, "X-Role", "admin"), http.StatusOK)
}

func TestBatchDeleteRequiresConfirm(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)
	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusCreated)

	w := s.do(t, http.MethodDelete, "/api/v1/sourcemaps/web/versions/batch", types.BatchCleanupRequest{ProjectID: "web", Versions: []string{"1.0.0"}})
	expectStatus(t, w, http.StatusOK)

	if body := decode[map[string]any](t, w); body["success"] != false {
		t.Fatalf("body = %v", body)
	}

	expectStatus(t, s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/1.0.0", nil), http.StatusOK)
}

func TestCleanupVersionsPreview(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)
	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusCreated)

	s.clock.Advance(31 * 24 * time.Hour)

	type cleanup struct {
		Message string                     `json:"message"`
		Data    types.VersionCleanupResult `json:"data"`
	}

	w := s.do(t, http.MethodDelete, "/api/v1/sourcemaps/web/versions/cleanup", nil)
	expectStatus(t, w, http.StatusOK)

	if res := decode[cleanup](t, w); !res.Data.Preview || len(res.Data.CleanedVersions) != 1 {
		t.Fatalf("preview = %+v", res)
	}

	expectStatus(t, s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/1.0.0", nil), http.StatusOK)

	w = s.do(t, http.MethodDelete, "/api/v1/sourcemaps/web/versions/cleanup?force=true", nil)
	expectStatus(t, w, http.StatusOK)

	if res := decode[cleanup](t, w); res.Data.Preview || res.Message != "cleaned up 1 versions" {
		t.Fatalf("cleanup = %+v", res)
	}

	expectStatus(t, s.do(t, http.MethodGet, "/api/v1/sourcemaps/web/versions/1.0.0", nil), http.StatusNotFound)
}

func TestReportErrors(t *testing.T) {
	s := newServer(t, middleware.RoleAdmin)
	expectStatus(t, s.createVersion(t, "1.0.0"), http.StatusCreated)

	w := s.do(t, http.MethodPost, "/api/v1/reports", types.ErrorReportRequest{
		ProjectID: "web",
		Errors:    []types.ErrorInfo{{Message: "x is undefined", Stack: minifiedStack, Version: "1.0.0"}},
	})
	expectStatus(t, w, http.StatusOK)

	res := decode[types.ErrorReportResponse](t, w)
	if res.Mapped != 1 || res.Errors[0].SourceFile == nil || *res.Errors[0].SourceFile != "src/a.ts" {
		t.Fatalf("report = %+v", res)
	}

	w = s.do(t, http.MethodGet, "/api/v1/reports/web", nil)
	expectStatus(t, w, http.StatusOK)

	if list := decode[types.ListReportsResponse](t, w); list.Pagination.Total != 1 {
		t.Fatalf("reports = %+v", list)
	}

	w = s.do(t, http.MethodPost, "/api/v1/reports/resolve", types.ResolveRequest{ProjectID: "web", Version: "1.0.0", Stack: minifiedStack})
	expectStatus(t, w, http.StatusOK)

	if r := decode[types.ResolveResponse](t, w); !strings.HasSuffix(r.MappedStack, "at render (src/a.ts:3:4)") {
		t.Fatalf("resolve = %q", r.MappedStack)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/reports", types.ErrorReportRequest{ProjectID: "web"}), http.StatusBadRequest)
}

func TestHealthWithoutStorage(t *testing.T) {
	s := newServer(t, middleware.RoleViewer)

	w := s.do(t, http.MethodGet, "/api/v1/health", nil)
	expectStatus(t, w, http.StatusOK)

	body := decode[struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}](t, w)
	if body.Status != "ok" || len(body.Components) != 4 || body.Components["db"] != "disabled" {
		t.Fatalf("health = %+v", body)
	}

	w = s.do(t, http.MethodGet, "/api/v1/health/db", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)

	if msg := decode[map[string]any](t, w)["error"]; msg != "db client not initialized" {
		t.Fatalf("error = %v", msg)
	}
}
