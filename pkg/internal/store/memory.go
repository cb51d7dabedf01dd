package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// MemoryStore 基于 map 的 Store 实现，进程重启后数据丢失.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[uint]*model.SourceMap
	keys   map[naturalKey]uint
	nextID uint
	opts   options
}

type naturalKey struct {
	project, version, filename string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		rows: make(map[uint]*model.SourceMap),
		keys: make(map[naturalKey]uint),
		opts: buildOptions(opts),
	}
}

func (m *MemoryStore) now() time.Time {
	return stamp(m.opts.now())
}

// Upsert 实现 Store.
func (m *MemoryStore) Upsert(_ context.Context, in UpsertInput) (*model.SourceMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	version := model.NormalizeVersion(in.Version)
	k := naturalKey{in.ProjectID, version, in.Filename}

	if id, ok := m.keys[k]; ok {
		row := m.rows[id]
		row.Content = in.Content
		row.Size = int64(len(in.Content))
		row.UploadedAt = now

		if row.ExpiresAt == nil {
			exp := now.Add(m.opts.expiry)
			row.ExpiresAt = &exp
		}

		return row.Clone(), nil
	}

	exp := now.Add(m.opts.expiry)
	row := &model.SourceMap{
		ProjectID:     in.ProjectID,
		Version:       version,
		Filename:      in.Filename,
		Content:       in.Content,
		ParentVersion: in.ParentVersion,
		Size:          int64(len(in.Content)),
		UploadedAt:    now,
		ExpiresAt:     &exp,
	}
	row = row.Clone()
	m.insertLocked(row)

	return row.Clone(), nil
}

// Insert 实现 Store.
func (m *MemoryStore) Insert(_ context.Context, rows []*model.SourceMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make(map[naturalKey]struct{}, len(rows))

	for _, r := range rows {
		k := naturalKey{r.ProjectID, model.NormalizeVersion(r.Version), r.Filename}
		if _, ok := m.keys[k]; ok {
			return fmt.Errorf("insert %s/%s/%s: %w", k.project, k.version, k.filename, ErrConflict)
		}

		if _, ok := batch[k]; ok {
			return fmt.Errorf("insert %s/%s/%s: %w", k.project, k.version, k.filename, ErrConflict)
		}

		batch[k] = struct{}{}
	}

	for _, r := range rows {
		r.Version = model.NormalizeVersion(r.Version)
		r.Size = int64(len(r.Content))
		r.UploadedAt = stamp(r.UploadedAt)

		if r.ExpiresAt != nil {
			e := stamp(*r.ExpiresAt)
			r.ExpiresAt = &e
		}

		c := r.Clone()
		m.insertLocked(c)
		r.ID = c.ID
	}

	return nil
}

func (m *MemoryStore) insertLocked(row *model.SourceMap) {
	m.nextID++
	row.ID = m.nextID
	m.rows[row.ID] = row
	m.keys[naturalKey{row.ProjectID, row.Version, row.Filename}] = row.ID
}

func (m *MemoryStore) deleteLocked(id uint) {
	row, ok := m.rows[id]
	if !ok {
		return
	}

	delete(m.keys, naturalKey{row.ProjectID, row.Version, row.Filename})
	delete(m.rows, id)
}

// filter 返回满足条件的行副本.
func (m *MemoryStore) filter(pred func(*model.SourceMap) bool) []*model.SourceMap {
	out := make([]*model.SourceMap, 0)

	for _, r := range m.rows {
		if pred(r) {
			out = append(out, r.Clone())
		}
	}

	return out
}

// sortByUpload 上传时间倒序，同一时间按 ID 倒序.
func sortByUpload(rows []*model.SourceMap) {
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].UploadedAt.Equal(rows[b].UploadedAt) {
			return rows[a].ID > rows[b].ID
		}

		return rows[a].UploadedAt.After(rows[b].UploadedAt)
	})
}

// FindByNaturalKey 实现 Store.
func (m *MemoryStore) FindByNaturalKey(_ context.Context, projectID, version, filename string) (*model.SourceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.keys[naturalKey{projectID, model.NormalizeVersion(version), filename}]
	if !ok {
		return nil, nil
	}

	return m.rows[id].Clone(), nil
}

// FindByProjectAndVersion 实现 Store.
func (m *MemoryStore) FindByProjectAndVersion(_ context.Context, projectID, version string) ([]*model.SourceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.filter(func(r *model.SourceMap) bool {
		return r.ProjectID == projectID && (version == "" || r.Version == version)
	})
	sortByUpload(rows)

	return rows, nil
}

// ListVersionFiles 实现 Store.
func (m *MemoryStore) ListVersionFiles(_ context.Context, projectID, version string) ([]*model.SourceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.filter(func(r *model.SourceMap) bool {
		return r.ProjectID == projectID && r.Version == version
	})
	sort.Slice(rows, func(a, b int) bool { return rows[a].Filename < rows[b].Filename })

	return rows, nil
}

// Query 实现 Store.
func (m *MemoryStore) Query(_ context.Context, q Query) ([]*model.SourceMap, int64, error) {
	q.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	soon := now.Add(ExpiringSoonWindow)

	rows := m.filter(func(r *model.SourceMap) bool {
		switch {
		case q.ProjectID != "" && r.ProjectID != q.ProjectID:
			return false
		case q.Version != "" && r.Version != q.Version:
			return false
		case q.Filename != "" && r.Filename != q.Filename:
			return false
		case q.Search != "" && !strings.Contains(r.Filename, q.Search):
			return false
		}

		switch q.Status {
		case StatusExpired:
			return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
		case StatusActive:
			return r.ExpiresAt == nil || !r.ExpiresAt.Before(now)
		case StatusExpiringSoon:
			return r.ExpiresAt != nil && !r.ExpiresAt.Before(now) && !r.ExpiresAt.After(soon)
		}

		return true
	})

	sort.SliceStable(rows, func(a, b int) bool {
		c := compareBy(q.SortBy, rows[a], rows[b])
		if c == 0 {
			c = compareUint(rows[a].ID, rows[b].ID)
		}

		if q.SortOrder == "asc" {
			return c < 0
		}

		return c > 0
	})

	total := int64(len(rows))
	start := min(q.Offset(), len(rows))
	end := min(start+q.PageSize, len(rows))

	return rows[start:end], total, nil
}

func compareBy(field string, a, b *model.SourceMap) int {
	switch field {
	case "filename":
		return strings.Compare(a.Filename, b.Filename)
	case "version":
		return strings.Compare(a.Version, b.Version)
	case "size":
		return compareInt64(a.Size, b.Size)
	case "expiresAt":
		// NULL 排在最前
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return 0
		case a.ExpiresAt == nil:
			return -1
		case b.ExpiresAt == nil:
			return 1
		}

		return a.ExpiresAt.Compare(*b.ExpiresAt)
	default:
		return a.UploadedAt.Compare(b.UploadedAt)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

func compareUint(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

// DistinctVersions 实现 Store.
func (m *MemoryStore) DistinctVersions(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)

	for _, r := range m.rows {
		if r.ProjectID != projectID {
			continue
		}

		if _, ok := seen[r.Version]; !ok {
			seen[r.Version] = struct{}{}
			out = append(out, r.Version)
		}
	}

	sort.Strings(out)

	return out, nil
}

// AggregateVersionSummary 实现 Store.
func (m *MemoryStore) AggregateVersionSummary(ctx context.Context, projectID string) ([]VersionSummary, error) {
	rows, err := m.FindByProjectAndVersion(ctx, projectID, "")
	if err != nil {
		return nil, err
	}

	return summarize(rows), nil
}

// CountVersion 实现 Store.
func (m *MemoryStore) CountVersion(_ context.Context, projectID, version string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64

	for _, r := range m.rows {
		if r.ProjectID == projectID && r.Version == version {
			n++
		}
	}

	return n, nil
}

// ListExpired 实现 Store.
func (m *MemoryStore) ListExpired(_ context.Context, projectID string) ([]*model.SourceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	rows := m.filter(func(r *model.SourceMap) bool {
		return (projectID == "" || r.ProjectID == projectID) && r.IsExpired(now)
	})
	sortByUpload(rows)

	return rows, nil
}

// DeleteExpired 实现 Store.
func (m *MemoryStore) DeleteExpired(_ context.Context, projectID string) (ExpiredResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rows := m.filter(func(r *model.SourceMap) bool {
		return (projectID == "" || r.ProjectID == projectID) && r.IsExpired(now)
	})

	for _, r := range rows {
		m.deleteLocked(r.ID)
	}

	return expiredResult(rows), nil
}

// DeleteByIDs 实现 Store.
func (m *MemoryStore) DeleteByIDs(_ context.Context, ids []uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			m.deleteLocked(id)
			n++
		}
	}

	return n, nil
}

// DeleteByProjectAndVersion 实现 Store.
func (m *MemoryStore) DeleteByProjectAndVersion(_ context.Context, projectID, version string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for id, r := range m.rows {
		if r.ProjectID == projectID && r.Version == version {
			m.deleteLocked(id)
			n++
		}
	}

	return n, nil
}

// ExtendExpiry 实现 Store.
func (m *MemoryStore) ExtendExpiry(_ context.Context, projectID, excludeVersion, excludeParentVersion string, newExpiry time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp := stamp(newExpiry)

	var n int64

	for _, r := range m.rows {
		if r.ProjectID != projectID || r.Version == excludeVersion {
			continue
		}

		if r.ParentVersion != nil && *r.ParentVersion == excludeParentVersion {
			continue
		}

		e := exp
		r.ExpiresAt = &e
		n++
	}

	return n, nil
}

// RecentUploads 实现 Store.
func (m *MemoryStore) RecentUploads(_ context.Context, projectID, excludeVersion string, since time.Time) ([]*model.SourceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.filter(func(r *model.SourceMap) bool {
		return r.ProjectID == projectID && r.Version != excludeVersion && !r.UploadedAt.Before(since)
	})
	sortByUpload(rows)

	return rows, nil
}

// VersionHistory 实现 Store.
func (m *MemoryStore) VersionHistory(ctx context.Context, projectID string, limit int) ([]*model.SourceMap, error) {
	rows, err := m.FindByProjectAndVersion(ctx, projectID, "")
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return rows, nil
}

// ProjectStats 实现 Store.
func (m *MemoryStore) ProjectStats(ctx context.Context, projectID string) (ProjectStats, error) {
	versions, err := m.DistinctVersions(ctx, projectID)
	if err != nil {
		return ProjectStats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	soon := now.Add(ExpiringSoonWindow)
	st := ProjectStats{Versions: versions}

	for _, r := range m.rows {
		if r.ProjectID != projectID {
			continue
		}

		st.TotalFiles++
		st.TotalSize += r.Size

		switch {
		case r.ExpiresAt == nil:
		case r.ExpiresAt.Before(now):
			st.ExpiredCount++
		case !r.ExpiresAt.After(soon):
			st.ExpiringSoon++
		}
	}

	return st, nil
}

// CountSince 实现 Store.
func (m *MemoryStore) CountSince(_ context.Context, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64

	for _, r := range m.rows {
		if !r.UploadedAt.Before(since) {
			n++
		}
	}

	return n, nil
}

// Ping 实现 Store.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
