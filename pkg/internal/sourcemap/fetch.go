package sourcemap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultFetchTimeout  = 5 * time.Second
	DefaultFetchMaxBytes = 20 << 20
)

var errFetchStatus = errors.New("sourcemap: unexpected fetch status")

// RemoteFetcher 按 <file>.map 从远端拉取 SourceMap.
// 超时、非 2xx 与熔断打开都视为没有 SourceMap.
type RemoteFetcher struct {
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	maxBytes int64
}

// NewRemoteFetcher 创建拉取器，breaker 可为 nil.
func NewRemoteFetcher(timeout time.Duration, maxBytes int64, breaker *gobreaker.CircuitBreaker) *RemoteFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	if maxBytes <= 0 {
		maxBytes = DefaultFetchMaxBytes
	}

	return &RemoteFetcher{
		client:   &http.Client{Timeout: timeout},
		breaker:  breaker,
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Fetch 拉取 file 对应的 SourceMap，成功时返回内联候选.
func (f *RemoteFetcher) Fetch(ctx context.Context, file string) (*Artifact, error) {
	mapURL := file + ".map"

	u, err := url.Parse(mapURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("not a remote file: %s", file)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	get := func() (any, error) { return f.get(ctx, mapURL) }

	var body any
	if f.breaker != nil {
		body, err = f.breaker.Execute(get)
	} else {
		body, err = get()
	}

	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", mapURL, err)
	}

	return &Artifact{
		Filename:   mapURL,
		Content:    base64.StdEncoding.EncodeToString(body.([]byte)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (f *RemoteFetcher) get(ctx context.Context, mapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mapURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", errFetchStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("source map exceeds %d bytes", f.maxBytes)
	}

	return data, nil
}
