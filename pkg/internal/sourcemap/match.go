package sourcemap

import "strings"

// FindBestMatch 按优先级选择候选：
//  1. 版本相同且文件名为 file+".map" 或包含 file
//  2. 忽略版本，文件名为 file+".map"，其次以 file 结尾，再次包含 file
//  3. 第一个候选
//
// 第 3 步可能选中与 file 无关的 SourceMap，结果只能作为参考.
// 候选为空时返回 nil.
func FindBestMatch(candidates []Artifact, file, version string) *Artifact {
	if len(candidates) == 0 {
		return nil
	}

	mapName := file + ".map"

	if version != "" {
		for i := range candidates {
			c := &candidates[i]
			if c.Version == version && (c.Filename == mapName || strings.Contains(c.Filename, file)) {
				return c
			}
		}
	}

	for _, pred := range []func(string) bool{
		func(name string) bool { return name == mapName },
		func(name string) bool { return strings.HasSuffix(name, file) },
		func(name string) bool { return strings.Contains(name, file) },
	} {
		for i := range candidates {
			if pred(candidates[i].Filename) {
				return &candidates[i]
			}
		}
	}

	return &candidates[0]
}
