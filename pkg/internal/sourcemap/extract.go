package sourcemap

import (
	"regexp"
	"strconv"
	"strings"
)

var mappedRe = regexp.MustCompile(`at\s+.*?\((.+?):(\d+):(\d+)\)`)

// MappedInfo 从映射后堆栈提取的位置信息.
type MappedInfo struct {
	MappedStack  string
	SourceFile   *string
	SourceLine   *int
	SourceColumn *int
}

// ExtractMappedInfo 读取堆栈最后一行的位置，MappedStack 总是原样返回.
func ExtractMappedInfo(stack string) MappedInfo {
	info := MappedInfo{MappedStack: stack}

	lines := strings.Split(stack, "\n")

	m := mappedRe.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return info
	}

	line, err := strconv.Atoi(m[2])
	if err != nil {
		return info
	}

	col, err := strconv.Atoi(m[3])
	if err != nil {
		return info
	}

	file := m[1]
	info.SourceFile = &file
	info.SourceLine = &line
	info.SourceColumn = &col

	return info
}
