package kv

import (
	"bytes"
	"encoding/binary"
	"time"
)

// 不支持单键过期的后端把截止时间写在值前面：magic + 8 字节 unix 纳秒.
var ttlHeader = []byte("SLT\x01")

const ttlHeaderLen = 4 + 8

// sealTTL 为值加上过期头，ttl<=0 时原样返回.
func sealTTL(value []byte, ttl time.Duration, now time.Time) []byte {
	if ttl <= 0 {
		return value
	}

	out := make([]byte, ttlHeaderLen+len(value))
	copy(out, ttlHeader)
	binary.BigEndian.PutUint64(out[len(ttlHeader):], uint64(now.Add(ttl).UnixNano()))
	copy(out[ttlHeaderLen:], value)

	return out
}

// openTTL 去掉过期头并判断是否已过期，没有头的值永不过期.
func openTTL(b []byte, now time.Time) (value []byte, expired bool) {
	if len(b) < ttlHeaderLen || !bytes.Equal(b[:len(ttlHeader)], ttlHeader) {
		return b, false
	}

	deadline := int64(binary.BigEndian.Uint64(b[len(ttlHeader):ttlHeaderLen]))
	if now.UnixNano() >= deadline {
		return nil, true
	}

	return b[ttlHeaderLen:], false
}
