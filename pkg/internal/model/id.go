package model

import (
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
)

// NewULID 生成按时间单调递增的 ULID，可并发调用.
func NewULID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}
