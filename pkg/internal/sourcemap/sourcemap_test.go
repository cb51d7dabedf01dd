package sourcemap_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
)

const testMap = `{"version":3,"file":"app.min.js","sources":["src/a.ts","src/b.ts"],"names":["handler"],"mappings":"AAAA,UAEI;KCKJA"}`

func encoded(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func testArtifact() sourcemap.Artifact {
	return sourcemap.Artifact{Version: "1.0.0", Filename: "app.min.js.map", Content: encoded(testMap)}
}

func TestFindBestMatch(t *testing.T) {
	cands := []sourcemap.Artifact{
		{Version: "1.0.0", Filename: "vendor.js.map"},
		{Version: "1.0.0", Filename: "static/app.js.map"},
		{Version: "2.0.0", Filename: "app.js.map"},
		{Version: "2.0.0", Filename: "chunk-app.js.map.bak"},
	}

	tests := []struct {
		name    string
		file    string
		version string
		want    string
	}{
		{"exact version and filename", "app.js", "2.0.0", "2.0.0/app.js.map"},
		{"exact version contains", "app.js", "1.0.0", "1.0.0/static/app.js.map"},
		{"filename equals without version", "app.js", "", "2.0.0/app.js.map"},
		{"suffix", "static/app.js.map", "", "1.0.0/static/app.js.map"},
		{"contains", "chunk-app", "", "2.0.0/chunk-app.js.map.bak"},
		{"fallback to first", "other.js", "", "1.0.0/vendor.js.map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sourcemap.FindBestMatch(cands, tt.file, tt.version)
			if got == nil {
				t.Fatal("got nil")
			}

			if id := got.Version + "/" + got.Filename; id != tt.want {
				t.Fatalf("got %s, want %s", id, tt.want)
			}
		})
	}

	if got := sourcemap.FindBestMatch(nil, "app.js", "1.0.0"); got != nil {
		t.Fatalf("empty candidates: got %+v", got)
	}
}

func TestOriginalPositionForLeastUpperBound(t *testing.T) {
	c, err := sourcemap.Decode(encoded(testMap))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer c.Close()

	tests := []struct {
		line, col int
		want      sourcemap.Position
		ok        bool
	}{
		{1, 0, sourcemap.Position{Source: "src/a.ts", Line: 1, Column: 0}, true},
		{1, 3, sourcemap.Position{Source: "src/a.ts", Line: 3, Column: 4}, true},
		{1, 10, sourcemap.Position{Source: "src/a.ts", Line: 3, Column: 4}, true},
		{2, 5, sourcemap.Position{Source: "src/b.ts", Line: 8, Column: 0, Name: "handler"}, true},
		{1, 11, sourcemap.Position{}, false},
		{3, 0, sourcemap.Position{}, false},
		{0, 0, sourcemap.Position{}, false},
	}

	for _, tt := range tests {
		got, ok := c.OriginalPositionFor(tt.line, tt.col, sourcemap.LeastUpperBound)
		if ok != tt.ok || got != tt.want {
			t.Errorf("(%d,%d) = %+v %v, want %+v %v", tt.line, tt.col, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOriginalPositionForGreatestLowerBound(t *testing.T) {
	c, err := sourcemap.Decode(encoded(testMap))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer c.Close()

	got, ok := c.OriginalPositionFor(1, 5, sourcemap.GreatestLowerBound)
	if !ok {
		t.Fatal("no position")
	}

	if got.Source != "src/a.ts" {
		t.Fatalf("got %+v", got)
	}
}

func TestSourceRoot(t *testing.T) {
	m := `{"version":3,"sourceRoot":"webpack:///","sources":["src/a.ts"],"names":[],"mappings":"AAAA"}`

	c, err := sourcemap.Decode(encoded(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, ok := c.OriginalPositionFor(1, 0, sourcemap.LeastUpperBound)
	if !ok || got.Source != "webpack:///src/a.ts" {
		t.Fatalf("got %+v %v", got, ok)
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"not base64":     "%%%",
		"not json":       encoded("hello"),
		"wrong version":  encoded(`{"version":2,"sources":[],"mappings":""}`),
		"bad source idx": encoded(`{"version":3,"sources":["a.js"],"names":[],"mappings":"ACAA"}`),
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := sourcemap.Decode(content); !errors.Is(err, sourcemap.ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeUnpaddedBase64(t *testing.T) {
	content := base64.RawStdEncoding.EncodeToString([]byte(testMap))

	c, err := sourcemap.Decode(content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if c.File() != "app.min.js" || len(c.Sources()) != 2 {
		t.Fatalf("file=%q sources=%v", c.File(), c.Sources())
	}
}

func TestResolve(t *testing.T) {
	r := sourcemap.NewResolver(sourcemap.NewDecodeCache(4, time.Minute))
	ctx := context.Background()
	cands := []sourcemap.Artifact{testArtifact()}

	pos := r.Resolve(ctx, sourcemap.Frame{Function: "f", File: "app.min.js", Line: 1, Column: 10}, "1.0.0", cands)
	if pos == nil || *pos != (sourcemap.Position{Source: "src/a.ts", Line: 3, Column: 4}) {
		t.Fatalf("got %+v", pos)
	}

	// 映射列为 0 时沿用帧列号
	pos = r.Resolve(ctx, sourcemap.Frame{File: "app.min.js", Line: 2, Column: 3}, "1.0.0", cands)
	if pos == nil || pos.Line != 8 || pos.Column != 3 {
		t.Fatalf("column fallback: got %+v", pos)
	}

	if pos := r.Resolve(ctx, sourcemap.Frame{File: "app.min.js", Line: 1, Column: 11}, "1.0.0", cands); pos != nil {
		t.Fatalf("beyond last segment: got %+v", pos)
	}

	if pos := r.Resolve(ctx, sourcemap.Frame{File: "app.min.js", Line: 1}, "1.0.0", nil); pos != nil {
		t.Fatalf("no candidates: got %+v", pos)
	}

	bad := []sourcemap.Artifact{{Filename: "app.min.js.map", Content: "bm90IGpzb24="}}
	if pos := r.Resolve(ctx, sourcemap.Frame{File: "app.min.js", Line: 1}, "", bad); pos != nil {
		t.Fatalf("bad map: got %+v", pos)
	}

	if r.Cache().Len() != 1 {
		t.Fatalf("cache len = %d, want 1", r.Cache().Len())
	}
}

func TestDecodeCacheReference(t *testing.T) {
	c := sourcemap.NewDecodeCache(2, time.Minute)

	var loads atomic.Int32

	load := func() (*sourcemap.Consumer, error) {
		loads.Add(1)
		return sourcemap.Decode(encoded(testMap))
	}

	h1, err := c.Acquire("k", load)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	h2, err := c.Acquire("k", load)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1", loads.Load())
	}

	c.Purge()

	// 淘汰后仍被引用的 Consumer 可继续使用
	if _, ok := h1.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); !ok {
		t.Fatal("consumer closed while referenced")
	}

	h1.Release()
	h1.Release()

	if _, ok := h2.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); !ok {
		t.Fatal("consumer closed while second handle held")
	}

	h2.Release()

	if _, ok := h2.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); ok {
		t.Fatal("consumer still open after last release")
	}

	h3, err := c.Acquire("k", load)
	if err != nil {
		t.Fatalf("acquire after purge: %v", err)
	}
	defer h3.Release()

	if loads.Load() != 2 {
		t.Fatalf("loads = %d, want 2", loads.Load())
	}
}

func TestDecodeCacheLoadError(t *testing.T) {
	c := sourcemap.NewDecodeCache(2, time.Minute)

	_, err := c.Acquire("bad", func() (*sourcemap.Consumer, error) { return sourcemap.Decode("") })
	if !errors.Is(err, sourcemap.ErrDecode) {
		t.Fatalf("err = %v", err)
	}

	if c.Len() != 0 {
		t.Fatalf("failed load cached")
	}
}

func TestDecodeLatin1Fallback(t *testing.T) {
	content := encoded("{\"version\":3,\"sources\":[\"caf\xe9.ts\"],\"names\":[],\"mappings\":\"AAAA\"}")

	c, err := sourcemap.Decode(content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got := c.Sources(); !slices.Equal(got, []string{"café.ts"}) {
		t.Fatalf("sources = %q", got)
	}
}

func TestDecodeCacheExpiresOnAccess(t *testing.T) {
	c := sourcemap.NewDecodeCache(4, 20*time.Millisecond)

	var loads atomic.Int32

	load := func() (*sourcemap.Consumer, error) {
		loads.Add(1)
		return sourcemap.Decode(encoded(testMap))
	}

	h1, err := c.Acquire("k", load)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	h1.Release()

	time.Sleep(60 * time.Millisecond)

	h2, err := c.Acquire("k", load)
	if err != nil {
		t.Fatalf("acquire after ttl: %v", err)
	}
	defer h2.Release()

	if loads.Load() != 2 {
		t.Fatalf("loads = %d, want 2", loads.Load())
	}

	if _, ok := h1.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); ok {
		t.Fatal("expired consumer still open")
	}

	if _, ok := h2.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); !ok {
		t.Fatal("fresh consumer closed")
	}
}

// 淘汰与获取交错时 Acquire 不应失败，持有期间 Consumer 保持可用.
func TestDecodeCacheAcquireUnderEviction(t *testing.T) {
	c := sourcemap.NewDecodeCache(2, 5*time.Millisecond)
	load := func() (*sourcemap.Consumer, error) { return sourcemap.Decode(encoded(testMap)) }

	stop := make(chan struct{})

	var purger sync.WaitGroup

	purger.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
				c.Purge()
			}
		}
	})

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)

	for g := range 8 {
		wg.Go(func() {
			for i := range 200 {
				h, err := c.Acquire(string(rune('a'+(g+i)%4)), load)
				if err != nil {
					failures.Add(1)
					continue
				}

				if _, ok := h.Consumer().OriginalPositionFor(1, 0, sourcemap.LeastUpperBound); !ok {
					failures.Add(1)
				}

				h.Release()
			}
		})
	}

	wg.Wait()
	close(stop)
	purger.Wait()

	if n := failures.Load(); n != 0 {
		t.Fatalf("%d acquisitions failed or returned a closed consumer", n)
	}
}

func TestParseFrame(t *testing.T) {
	f, ok := sourcemap.ParseFrame("    at handleClick (https://cdn.example.com/app.min.js:1:10)")
	if !ok {
		t.Fatal("not parsed")
	}

	want := sourcemap.Frame{Function: "handleClick", File: "https://cdn.example.com/app.min.js", Line: 1, Column: 10}
	if f != want {
		t.Fatalf("got %+v, want %+v", f, want)
	}

	for _, line := range []string{"Error: boom", "at app.min.js:1:10", "    at <anonymous>"} {
		if _, ok := sourcemap.ParseFrame(line); ok {
			t.Errorf("%q parsed as frame", line)
		}
	}

	stack := "TypeError: x\n  at a (app.min.js:1:0)\n  at b (app.min.js:2:5)\n  at native"
	if got := len(sourcemap.ParseStack(stack)); got != 2 {
		t.Fatalf("frames = %d, want 2", got)
	}
}

func TestMapStack(t *testing.T) {
	m := sourcemap.NewMapper(sourcemap.NewResolver(nil), 2)

	stack := strings.Join([]string{
		"TypeError: Cannot read properties of undefined",
		"    at render (app.min.js:1:10)",
		"    at handler (app.min.js:2:5) [extra]",
		"    at lost (app.min.js:1:11)",
		"    at Object.<anonymous> (vendor.js)",
		"",
	}, "\n")

	got := m.MapStack(context.Background(), stack, "1.0.0", []sourcemap.Artifact{testArtifact()})

	want := strings.Join([]string{
		"TypeError: Cannot read properties of undefined",
		"    at render (src/a.ts:3:4)",
		"    at handler (src/b.ts:8:5) [extra]",
		"    at lost (app.min.js:1:11)",
		"    at Object.<anonymous> (vendor.js)",
		"",
	}, "\n")

	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestMapStackWithoutCandidates(t *testing.T) {
	m := sourcemap.NewMapper(sourcemap.NewResolver(nil), 0)
	stack := "Error\n  at f (app.min.js:1:0)"

	if got := m.MapStack(context.Background(), stack, "", nil); got != stack {
		t.Fatalf("got %q", got)
	}
}

func TestExtractMappedInfo(t *testing.T) {
	info := sourcemap.ExtractMappedInfo("Error\n  at a (src/x.ts:1:1)\n  at b (src/a.ts:3:4)")
	if info.SourceFile == nil || *info.SourceFile != "src/a.ts" || *info.SourceLine != 3 || *info.SourceColumn != 4 {
		t.Fatalf("got %+v", info)
	}

	info = sourcemap.ExtractMappedInfo("Error: boom")
	if info.MappedStack != "Error: boom" || info.SourceFile != nil || info.SourceLine != nil {
		t.Fatalf("got %+v", info)
	}
}

func TestParseBias(t *testing.T) {
	if sourcemap.ParseBias("greatest_lower_bound") != sourcemap.GreatestLowerBound {
		t.Fatal("glb")
	}

	if b := sourcemap.ParseBias("whatever"); b != sourcemap.LeastUpperBound || b.String() != "least_upper_bound" {
		t.Fatalf("got %v", b)
	}
}

func TestRemoteFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app.min.js.map" {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write([]byte(testMap))
	}))
	defer srv.Close()

	f := sourcemap.NewRemoteFetcher(time.Second, 1<<20, nil)
	ctx := context.Background()

	art, err := f.Fetch(ctx, srv.URL+"/app.min.js")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	pos := sourcemap.NewResolver(nil).Resolve(ctx, sourcemap.Frame{File: "app.min.js", Line: 1, Column: 10}, "", []sourcemap.Artifact{*art})
	if pos == nil || pos.Source != "src/a.ts" {
		t.Fatalf("resolve fetched map: %+v", pos)
	}

	if _, err := f.Fetch(ctx, srv.URL+"/missing.js"); err == nil {
		t.Fatal("404 should fail")
	}

	if _, err := f.Fetch(ctx, "app.min.js"); err == nil {
		t.Fatal("relative file should fail")
	}

	small := sourcemap.NewRemoteFetcher(time.Second, 8, nil)
	if _, err := small.Fetch(ctx, srv.URL+"/app.min.js"); err == nil {
		t.Fatal("oversized body should fail")
	}
}
