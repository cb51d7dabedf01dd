package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/types"
)

// ListVersions 按版本聚合的摘要.
//
//	@Summary		版本列表
//	@Tags			版本管理
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Success		200			{object}	types.VersionsResponse
//	@Router			/api/v1/sourcemaps/{projectId}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	projectID := c.Param("projectId")

	versions, err := h.svc.Versions.AllVersions(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err, "list versions failed")
		return
	}

	c.JSON(http.StatusOK, types.VersionsResponse{ProjectID: projectID, Versions: versions})
}

// VersionHistory 最近上传的版本.
//
//	@Summary		版本历史
//	@Tags			版本管理
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			limit		query		int		false	"版本数，默认 50，最大 500"
//	@Success		200			{object}	types.VersionHistoryResponse
//	@Router			/api/v1/sourcemaps/{projectId}/versions/history [get]
func (h *Handler) VersionHistory(c *gin.Context) {
	projectID := c.Param("projectId")

	history, err := h.svc.Versions.VersionHistory(c.Request.Context(), projectID, queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err, "version history failed")
		return
	}

	c.JSON(http.StatusOK, types.VersionHistoryResponse{ProjectID: projectID, History: history})
}

// CreateVersion 创建版本，版本已存在返回 409.
//
//	@Summary		创建版本
//	@Tags			版本管理
//	@Accept			json
//	@Produce		json
//	@Param			projectId	path		string						true	"项目ID"
//	@Param			body		body		types.CreateVersionRequest	true	"版本文件"
//	@Success		201			{object}	types.CreateVersionResponse
//	@Failure		400			{object}	map[string]string	"请求参数错误"
//	@Failure		409			{object}	map[string]string	"版本已存在"
//	@Router			/api/v1/sourcemaps/{projectId}/versions [post]
func (h *Handler) CreateVersion(c *gin.Context) {
	req := types.CreateVersionRequest{ProjectID: c.Param("projectId")}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.Versions.CreateVersion(c.Request.Context(), c.Param("projectId"), req.Version, req.Files, req.ParentVersion)
	if err != nil {
		writeError(c, err, "create version failed")
		return
	}

	c.JSON(http.StatusCreated, res)
}

// RollbackVersion 以目标版本的内容创建新版本.
//
//	@Summary		回滚版本
//	@Tags			版本管理
//	@Accept			json
//	@Produce		json
//	@Param			projectId	path		string					true	"项目ID"
//	@Param			body		body		types.RollbackRequest	true	"回滚请求"
//	@Success		201			{object}	types.CreateVersionResponse
//	@Failure		404			{object}	map[string]string	"目标版本不存在"
//	@Failure		409			{object}	map[string]string	"新版本已存在"
//	@Router			/api/v1/sourcemaps/{projectId}/versions/rollback [post]
func (h *Handler) RollbackVersion(c *gin.Context) {
	req := types.RollbackRequest{ProjectID: c.Param("projectId")}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.Versions.RollbackToVersion(c.Request.Context(), c.Param("projectId"), req.TargetVersion, req.NewVersion)
	if err != nil {
		writeError(c, err, "rollback version failed")
		return
	}

	c.JSON(http.StatusCreated, res)
}

// CompareVersions 对比两个版本的文件集合.
//
//	@Summary		对比版本
//	@Tags			版本管理
//	@Accept			json
//	@Produce		json
//	@Param			projectId	path		string							true	"项目ID"
//	@Param			body		body		types.CompareVersionsRequest	true	"两个版本号"
//	@Success		200			{object}	types.VersionComparison
//	@Router			/api/v1/sourcemaps/{projectId}/versions/compare [post]
func (h *Handler) CompareVersions(c *gin.Context) {
	req := types.CompareVersionsRequest{ProjectID: c.Param("projectId")}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.Versions.CompareVersions(c.Request.Context(), c.Param("projectId"), req.Version1, req.Version2)
	if err != nil {
		writeError(c, err, "compare versions failed")
		return
	}

	c.JSON(http.StatusOK, res)
}

// SuggestVersion 建议下一个版本号.
//
//	@Summary		建议版本号
//	@Tags			版本管理
//	@Produce		json
//	@Param			projectId		path		string	true	"项目ID"
//	@Param			currentVersion	query		string	true	"当前版本"
//	@Success		200				{object}	types.VersionSuggestion
//	@Failure		404				{object}	map[string]string	"当前版本不存在"
//	@Router			/api/v1/sourcemaps/{projectId}/versions/suggest [get]
func (h *Handler) SuggestVersion(c *gin.Context) {
	req := types.SuggestVersionRequest{ProjectID: c.Param("projectId")}
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.Versions.SuggestNewVersion(c.Request.Context(), c.Param("projectId"), req.CurrentVersion)
	if err != nil {
		writeError(c, err, "suggest version failed")
		return
	}

	c.JSON(http.StatusOK, res)
}

// CleanupVersions 清理过期版本，force=true 时执行删除，否则只返回预览.
//
//	@Summary		清理过期版本
//	@Tags			版本管理
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			force		query		bool	false	"执行删除"
//	@Success		200			{object}	types.VersionCleanupResult
//	@Router			/api/v1/sourcemaps/{projectId}/versions/cleanup [delete]
func (h *Handler) CleanupVersions(c *gin.Context) {
	projectID := c.Param("projectId")
	force, _ := strconv.ParseBool(c.Query("force"))

	if !force {
		res, err := h.svc.Versions.PreviewExpiredVersions(c.Request.Context(), projectID)
		if err != nil {
			writeError(c, err, "preview cleanup failed")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "preview only, use force=true to execute", "data": res})

		return
	}

	res, err := h.svc.Versions.CleanupExpiredVersions(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err, "cleanup versions failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cleaned up " + strconv.Itoa(len(res.CleanedVersions)) + " versions", "data": res})
}

// BatchDeleteVersions 批量删除版本，需要 confirm=true.
//
//	@Summary		批量删除版本
//	@Tags			版本管理
//	@Accept			json
//	@Produce		json
//	@Param			projectId	path		string						true	"项目ID"
//	@Param			body		body		types.BatchCleanupRequest	true	"版本列表"
//	@Success		200			{object}	types.BatchCleanupResult
//	@Router			/api/v1/sourcemaps/{projectId}/versions/batch [delete]
func (h *Handler) BatchDeleteVersions(c *gin.Context) {
	req := types.BatchCleanupRequest{ProjectID: c.Param("projectId")}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if !req.Confirm {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "set confirm=true to proceed with deletion"})
		return
	}

	res := h.svc.Versions.BatchVersionCleanup(c.Request.Context(), c.Param("projectId"), req.Versions)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

// VersionDetails 单个版本的文件明细.
//
//	@Summary		版本详情
//	@Tags			版本管理
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			version		path		string	true	"版本"
//	@Success		200			{object}	types.VersionDetails
//	@Failure		404			{object}	map[string]string	"版本不存在"
//	@Router			/api/v1/sourcemaps/{projectId}/versions/{version} [get]
func (h *Handler) VersionDetails(c *gin.Context) {
	res, err := h.svc.Versions.VersionDetails(c.Request.Context(), c.Param("projectId"), c.Param("version"))
	if err != nil {
		writeError(c, err, "version details failed")
		return
	}

	res.Files = withoutContent(res.Files)
	c.JSON(http.StatusOK, res)
}
