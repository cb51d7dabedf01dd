package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/types"
)

// UploadSourceMaps 批量上传 SourceMap，同名文件覆盖.
//
//	@Summary		上传SourceMap
//	@Description	按 (projectId, version, filename) 写入，已存在时覆盖内容并刷新上传时间
//	@Tags			SourceMap
//	@Accept			json
//	@Produce		json
//	@Param			body	body		types.UploadSourceMapsRequest	true	"上传请求"
//	@Success		200		{object}	types.UploadSourceMapsResponse
//	@Failure		400		{object}	map[string]string	"请求参数错误"
//	@Failure		500		{object}	map[string]string	"服务器内部错误"
//	@Router			/api/v1/sourcemaps [post]
func (h *Handler) UploadSourceMaps(c *gin.Context) {
	var req types.UploadSourceMapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	rows, err := h.svc.SourceMaps.Upload(c.Request.Context(), req.ProjectID, req.SourceMaps)
	if err != nil {
		writeError(c, err, "upload source maps failed")
		return
	}

	c.JSON(http.StatusOK, types.UploadSourceMapsResponse{Success: true, Count: len(rows), Files: withoutContent(rows)})
}

// ListSourceMaps 项目下的文件，可按版本过滤.
//
//	@Summary		SourceMap列表
//	@Tags			SourceMap
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			version		query		string	false	"版本"
//	@Success		200			{object}	types.ListSourceMapsResponse
//	@Router			/api/v1/sourcemaps/{projectId} [get]
func (h *Handler) ListSourceMaps(c *gin.Context) {
	rows, err := h.svc.SourceMaps.List(c.Request.Context(), c.Param("projectId"), c.Query("version"))
	if err != nil {
		writeError(c, err, "list source maps failed")
		return
	}

	c.JSON(http.StatusOK, types.ListSourceMapsResponse{Files: withoutContent(rows), Total: len(rows)})
}

// GetSourceMap 按自然键读取单个文件，包含内容.
//
//	@Summary		获取SourceMap
//	@Tags			SourceMap
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			filename	path		string	true	"文件名"
//	@Param			version		query		string	false	"版本，缺省为 unknown"
//	@Success		200			{object}	model.SourceMap
//	@Failure		404			{object}	map[string]string	"文件不存在"
//	@Router			/api/v1/sourcemaps/{projectId}/{filename} [get]
func (h *Handler) GetSourceMap(c *gin.Context) {
	row, err := h.svc.SourceMaps.Get(c.Request.Context(), c.Param("projectId"), c.Query("version"), c.Param("filename"))
	if err != nil {
		writeError(c, err, "get source map failed")
		return
	}

	c.JSON(http.StatusOK, row)
}

// SearchSourceMaps 高级查询.
//
//	@Summary		查询SourceMap
//	@Description	支持版本、文件名模糊匹配、过期状态筛选、排序与分页
//	@Tags			SourceMap
//	@Produce		json
//	@Param			query	query		types.SearchSourceMapsRequest	true	"查询条件"
//	@Success		200		{object}	types.SearchSourceMapsResponse
//	@Failure		400		{object}	map[string]string	"请求参数错误"
//	@Router			/api/v1/sourcemaps/search [get]
func (h *Handler) SearchSourceMaps(c *gin.Context) {
	var req types.SearchSourceMapsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.SourceMaps.Search(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, "search source maps failed")
		return
	}

	res.Files = withoutContent(res.Files)
	c.JSON(http.StatusOK, res)
}

// ProjectVersions 项目中出现过的版本号.
//
//	@Summary		项目版本号
//	@Tags			SourceMap
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Success		200			{object}	types.ProjectVersionsResponse
//	@Router			/api/v1/sourcemaps/{projectId}/version-names [get]
func (h *Handler) ProjectVersions(c *gin.Context) {
	projectID := c.Param("projectId")

	versions, err := h.svc.SourceMaps.Versions(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err, "list project versions failed")
		return
	}

	c.JSON(http.StatusOK, types.ProjectVersionsResponse{ProjectID: projectID, Versions: versions})
}

// SourceMapStats 项目统计.
//
//	@Summary		项目统计
//	@Tags			SourceMap
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Success		200			{object}	store.ProjectStats
//	@Router			/api/v1/sourcemaps/{projectId}/stats [get]
func (h *Handler) SourceMapStats(c *gin.Context) {
	stats, err := h.svc.SourceMaps.Stats(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		writeError(c, err, "project stats failed")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CleanupSourceMaps 删除所有项目中已过期的文件.
//
//	@Summary		清理过期SourceMap
//	@Tags			SourceMap
//	@Produce		json
//	@Success		200	{object}	types.CleanupResponse
//	@Router			/api/v1/sourcemaps/cleanup [delete]
func (h *Handler) CleanupSourceMaps(c *gin.Context) {
	res, err := h.svc.SourceMaps.CleanupExpired(c.Request.Context())
	if err != nil {
		writeError(c, err, "cleanup source maps failed")
		return
	}

	c.JSON(http.StatusOK, types.CleanupResponse{Deleted: res.Count, Versions: res.Versions, TotalSize: res.TotalSize})
}

// DeleteSourceMaps 按 ID 批量删除.
//
//	@Summary		批量删除SourceMap
//	@Tags			SourceMap
//	@Accept			json
//	@Produce		json
//	@Param			body	body		types.DeleteSourceMapsRequest	true	"ID 列表"
//	@Success		200		{object}	types.DeleteResponse
//	@Router			/api/v1/sourcemaps [delete]
func (h *Handler) DeleteSourceMaps(c *gin.Context) {
	var req types.DeleteSourceMapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	n, err := h.svc.SourceMaps.DeleteByIDs(c.Request.Context(), req.IDs)
	if err != nil {
		writeError(c, err, "delete source maps failed")
		return
	}

	c.JSON(http.StatusOK, types.DeleteResponse{Deleted: n})
}

// SourceMapHealth 最近上传量反映的服务状态，unhealthy 时返回 503.
//
//	@Summary		SourceMap服务健康
//	@Tags			健康检查
//	@Produce		json
//	@Success		200	{object}	types.SourceMapHealth
//	@Failure		503	{object}	types.SourceMapHealth
//	@Router			/api/v1/health/sourcemaps [get]
func (h *Handler) SourceMapHealth(c *gin.Context) {
	res := h.svc.SourceMaps.Health(c.Request.Context())

	status := http.StatusOK
	if res.Status == types.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, res)
}

// DecodeCacheStats 解码缓存条目数.
//
//	@Summary		解码缓存状态
//	@Tags			SourceMap
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Router			/api/v1/sourcemaps/cache [get]
func (h *Handler) DecodeCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.svc.Resolver.Cache().Len()})
}

// PurgeDecodeCache 清空解码缓存，正在使用的条目在释放后回收.
//
//	@Summary		清空解码缓存
//	@Tags			SourceMap
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Router			/api/v1/sourcemaps/cache [delete]
func (h *Handler) PurgeDecodeCache(c *gin.Context) {
	n := h.svc.Resolver.Cache().Len()
	h.svc.Resolver.Cache().Purge()

	c.JSON(http.StatusOK, gin.H{"purged": n})
}
