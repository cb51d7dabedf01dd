package sourcemap

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	smv1 "gopkg.in/sourcemap.v1"
	"gopkg.in/sourcemap.v1/base64vlq"
)

// segment 一个映射段，source 与 name 为 -1 表示缺省.
type segment struct {
	genCol  int
	source  int
	srcLine int
	srcCol  int
	name    int
}

// Consumer 已解码的 SourceMap，可并发查询.
type Consumer struct {
	raw   *RawMap
	lines [][]segment // 下标为生成行号-1，段按列升序
	glb   *smv1.Consumer

	mu     sync.RWMutex
	closed bool
}

// NewConsumer 从 SourceMap JSON 构建 Consumer.
func NewConsumer(data []byte) (*Consumer, error) {
	raw, err := ParseRaw(data)
	if err != nil {
		return nil, err
	}

	lines, err := indexMappings(raw)
	if err != nil {
		return nil, err
	}

	glb, err := smv1.Parse("", data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &Consumer{raw: raw, lines: lines, glb: glb}, nil
}

// indexMappings 解析 mappings 字段为按行索引的段列表.
func indexMappings(raw *RawMap) ([][]segment, error) {
	var lines [][]segment

	// 源文件、源码行列与名称下标在整个 mappings 中累加
	source, srcLine, srcCol, nameIdx := 0, 0, 0, 0

	for lineNo, text := range strings.Split(raw.Mappings, ";") {
		var segs []segment

		genCol := 0

		for _, seg := range strings.Split(text, ",") {
			if seg == "" {
				continue
			}

			fields, err := decodeSegment(seg)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d segment %q: %v", ErrDecode, lineNo+1, seg, err)
			}

			genCol += fields[0]
			s := segment{genCol: genCol, source: -1, name: -1}

			if len(fields) >= 4 {
				source += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]

				if source < 0 || source >= len(raw.Sources) {
					return nil, fmt.Errorf("%w: source index %d out of range", ErrDecode, source)
				}

				s.source, s.srcLine, s.srcCol = source, srcLine, srcCol
			}

			if len(fields) >= 5 {
				nameIdx += fields[4]
				if nameIdx >= 0 && nameIdx < len(raw.Names) {
					s.name = nameIdx
				}
			}

			segs = append(segs, s)
		}

		sort.SliceStable(segs, func(a, b int) bool { return segs[a].genCol < segs[b].genCol })
		lines = append(lines, segs)
	}

	return lines, nil
}

// decodeSegment 解出一个段的 1、4 或 5 个 VLQ 字段.
func decodeSegment(seg string) ([]int, error) {
	r := strings.NewReader(seg)
	dec := base64vlq.NewDecoder(r)
	fields := make([]int, 0, 5)

	for r.Len() > 0 {
		n, err := dec.Decode()
		if err != nil {
			// 读到段尾仍未结束说明最后一个值被截断
			return nil, fmt.Errorf("truncated value: %w", err)
		}

		fields = append(fields, n)
	}

	switch len(fields) {
	case 1, 4, 5:
		return fields, nil
	default:
		return nil, fmt.Errorf("unexpected field count %d", len(fields))
	}
}

// Sources 原始源文件列表.
func (c *Consumer) Sources() []string {
	return c.raw.Sources
}

// File 生成文件名.
func (c *Consumer) File() string {
	return c.raw.File
}

// OriginalPositionFor 查找生成位置 (line 从 1 开始, column 从 0 开始) 对应的源码位置.
func (c *Consumer) OriginalPositionFor(line, column int, bias Bias) (Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Position{}, false
	}

	if bias == GreatestLowerBound {
		source, name, l, col, ok := c.glb.Source(line, column)
		if !ok || source == "" {
			return Position{}, false
		}

		return Position{Source: source, Line: l, Column: col, Name: name}, true
	}

	if line < 1 || line > len(c.lines) {
		return Position{}, false
	}

	segs := c.lines[line-1]

	i := sort.Search(len(segs), func(i int) bool { return segs[i].genCol >= column })
	if i == len(segs) || segs[i].source < 0 {
		return Position{}, false
	}

	s := segs[i]
	pos := Position{
		Source: c.sourcePath(s.source),
		Line:   s.srcLine + 1,
		Column: s.srcCol,
	}

	if s.name >= 0 {
		pos.Name = c.raw.Names[s.name]
	}

	return pos, true
}

func (c *Consumer) sourcePath(i int) string {
	src := c.raw.Sources[i]
	if c.raw.SourceRoot == "" || path.IsAbs(src) || strings.Contains(src, "://") {
		return src
	}

	if strings.Contains(c.raw.SourceRoot, "://") {
		return strings.TrimSuffix(c.raw.SourceRoot, "/") + "/" + src
	}

	return path.Join(c.raw.SourceRoot, src)
}

// Close 释放解码数据，之后的查询都返回未找到.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.lines = nil
	c.glb = nil
}
