package sourcemap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// ErrDecode 内容不是合法的 base64 或 SourceMap JSON.
var ErrDecode = errors.New("sourcemap: decode failed")

// RawMap 标准 SourceMap（v3）结构.
type RawMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
}

// DecodeContent 把 base64 内容还原为 JSON 文本.
// 解码后的字节是合法 UTF-8 时直接使用，否则按单字节字符逐个转换.
func DecodeContent(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrDecode)
	}

	var (
		raw []byte
		err error
	)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err = enc.DecodeString(content); err == nil {
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}

	if utf8.Valid(raw) {
		return raw, nil
	}

	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}

	return []byte(string(runes)), nil
}

// ParseRaw 解析 SourceMap JSON.
func ParseRaw(data []byte) (*RawMap, error) {
	var m RawMap
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrDecode, err)
	}

	if m.Version != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, m.Version)
	}

	return &m, nil
}

// Decode 解码 base64 内容并构建 Consumer.
func Decode(content string) (*Consumer, error) {
	data, err := DecodeContent(content)
	if err != nil {
		return nil, err
	}

	return NewConsumer(data)
}
