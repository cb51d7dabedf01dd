// Package sourcemap 把压缩后的 JavaScript 堆栈还原到源码位置.
//
// 流程：FindBestMatch 在候选文件中挑选 SourceMap，Decode 解出标准 SourceMap 结构，
// Consumer 按偏向规则查找原始位置，Mapper 逐行改写堆栈. 解码结果由 DecodeCache 短期缓存.
// 解析失败一律视为"无映射"，调用方保留原始帧.
package sourcemap

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// Artifact 一个候选 SourceMap，来自存储或随上报内联提交.
type Artifact struct {
	ID         uint
	Version    string
	Filename   string
	Content    string // base64 编码的 SourceMap JSON
	UploadedAt time.Time
}

// FromModel 把存储行转换为候选列表，顺序不变.
func FromModel(rows []*model.SourceMap) []Artifact {
	out := make([]Artifact, 0, len(rows))
	for _, r := range rows {
		out = append(out, Artifact{
			ID:         r.ID,
			Version:    r.Version,
			Filename:   r.Filename,
			Content:    r.Content,
			UploadedAt: r.UploadedAt,
		})
	}

	return out
}

// CacheKey 解码缓存键：存储行按 ID 与上传时间，内联内容按内容哈希.
func (a *Artifact) CacheKey() string {
	if a.ID != 0 {
		return fmt.Sprintf("id:%d:%d", a.ID, a.UploadedAt.UnixNano())
	}

	return fmt.Sprintf("xx:%016x", xxhash.Sum64String(a.Content))
}

// Frame 堆栈中的一帧，Line 从 1 开始.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Position 原始源码位置.
type Position struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Name   string `json:"name,omitempty"`
}

// Bias 没有精确映射时的查找方向.
type Bias int

const (
	// LeastUpperBound 取同一行中位于请求位置之后最近的映射.
	LeastUpperBound Bias = iota
	// GreatestLowerBound 取请求位置之前最近的映射.
	GreatestLowerBound
)

// ParseBias 解析配置值，未知值按 LeastUpperBound 处理.
func ParseBias(s string) Bias {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "greatest_lower_bound", "glb":
		return GreatestLowerBound
	default:
		return LeastUpperBound
	}
}

func (b Bias) String() string {
	if b == GreatestLowerBound {
		return "greatest_lower_bound"
	}

	return "least_upper_bound"
}
