package sourcemap

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yeisme/sourcelens/pkg/metrics"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

// DefaultParallelFrames 单个堆栈同时解析的帧数.
const DefaultParallelFrames = 8

var frameRe = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)

// ParseFrame 解析形如 "at fn (file:line:col)" 的一行，不匹配时 ok 为 false.
func ParseFrame(line string) (Frame, bool) {
	f, _, ok := parseFrame(line)
	return f, ok
}

func parseFrame(line string) (Frame, []int, bool) {
	loc := frameRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return Frame{}, nil, false
	}

	lineNo, err := strconv.Atoi(line[loc[6]:loc[7]])
	if err != nil {
		return Frame{}, nil, false
	}

	col, err := strconv.Atoi(line[loc[8]:loc[9]])
	if err != nil {
		return Frame{}, nil, false
	}

	return Frame{
		Function: line[loc[2]:loc[3]],
		File:     line[loc[4]:loc[5]],
		Line:     lineNo,
		Column:   col,
	}, loc[:2], true
}

// ParseStack 返回堆栈中全部可识别的帧.
func ParseStack(stack string) []Frame {
	var frames []Frame

	for _, line := range strings.Split(stack, "\n") {
		if f, ok := ParseFrame(line); ok {
			frames = append(frames, f)
		}
	}

	return frames
}

// Mapper 逐行改写堆栈，可并发使用.
type Mapper struct {
	resolver PositionResolver
	parallel int
}

// NewMapper 创建 Mapper，parallel 小于 1 时使用默认值.
func NewMapper(resolver PositionResolver, parallel int) *Mapper {
	if parallel < 1 {
		parallel = DefaultParallelFrames
	}

	return &Mapper{resolver: resolver, parallel: parallel}
}

// MapStack 把堆栈中能解析的帧替换为源码位置.
// 无法解析或不是帧的行原样保留，行序不变.
func (m *Mapper) MapStack(ctx context.Context, stack, version string, candidates []Artifact) string {
	ctx, span := tracing.StartSpan(ctx, "sourcemap.MapStack")
	defer span.End()

	start := time.Now()
	defer func() { metrics.MappingDuration.Observe(time.Since(start).Seconds()) }()

	lines := strings.Split(stack, "\n")
	out := make([]string, len(lines))
	copy(out, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)

	for i, line := range lines {
		frame, loc, ok := parseFrame(line)
		if !ok {
			continue
		}

		g.Go(func() error {
			pos := m.resolver.Resolve(gctx, frame, version, candidates)
			if pos == nil {
				return nil
			}

			out[i] = line[:loc[0]] + formatFrame(frame.Function, pos) + line[loc[1]:]

			return nil
		})
	}

	_ = g.Wait()

	return strings.Join(out, "\n")
}

func formatFrame(fn string, pos *Position) string {
	return fmt.Sprintf("at %s (%s:%d:%d)", fn, pos.Source, pos.Line, pos.Column)
}
