package service

import (
	"context"
	"fmt"
	"path"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
)

// ObjectStore 归档所需的对象存储操作，s3.Client 满足该接口.
type ObjectStore interface {
	PutBytes(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Archiver 把上传的 SourceMap 另存到对象存储.
// 对象键为 <prefix>projects/<project>/<version>/<filename>.
type Archiver struct {
	objects ObjectStore
	prefix  string
}

// NewArchiver 创建归档器.
func NewArchiver(objects ObjectStore, prefix string) *Archiver {
	return &Archiver{objects: objects, prefix: prefix}
}

func (a *Archiver) versionPrefix(projectID, version string) string {
	return a.prefix + path.Join("projects", projectID, version) + "/"
}

// Key 文件的对象键.
func (a *Archiver) Key(row *model.SourceMap) string {
	return a.versionPrefix(row.ProjectID, row.Version) + path.Clean("/" + row.Filename)[1:]
}

// Archive 写入一批文件，内容能解码时存 JSON，否则原样保存.
func (a *Archiver) Archive(ctx context.Context, rows []*model.SourceMap) error {
	if a == nil {
		return nil
	}

	for _, r := range rows {
		data, contentType := []byte(r.Content), "text/plain"
		if raw, err := sourcemap.DecodeContent(r.Content); err == nil {
			data, contentType = raw, "application/json"
		}

		meta := map[string]string{"project": r.ProjectID, "version": r.Version}
		if _, err := a.objects.PutBytes(ctx, a.Key(r), data, contentType, meta); err != nil {
			return fmt.Errorf("archive %s: %w", r.Filename, err)
		}
	}

	return nil
}

// RemoveVersion 删除一个版本的归档.
func (a *Archiver) RemoveVersion(ctx context.Context, projectID, version string) (int, error) {
	if a == nil {
		return 0, nil
	}

	return a.objects.DeletePrefix(ctx, a.versionPrefix(projectID, version))
}
