package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/log"
)

// ReportErrors 接收前端错误上报并还原堆栈.
// 映射失败时保存原始错误，仍返回 200.
//
//	@Summary		错误上报
//	@Description	使用内联或已上传的 SourceMap 还原堆栈，返回映射后的错误
//	@Tags			错误上报
//	@Accept			json
//	@Produce		json
//	@Param			body	body		types.ErrorReportRequest	true	"错误列表"
//	@Success		200		{object}	types.ErrorReportResponse
//	@Failure		400		{object}	map[string]string	"请求参数错误"
//	@Failure		500		{object}	map[string]string	"保存失败"
//	@Router			/api/v1/reports [post]
func (h *Handler) ReportErrors(c *gin.Context) {
	var req types.ErrorReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()

	res, err := h.svc.Reports.Process(ctx, &req)
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}

	l := log.Logger()
	l.Warn().Err(err).Str("project", req.ProjectID).Msg("process report failed, saving raw errors")

	raw, err := h.svc.Reports.SaveRaw(ctx, &req)
	if err != nil {
		writeError(c, err, "save raw report failed")
		return
	}

	c.JSON(http.StatusOK, types.ErrorReportResponse{Success: true, Errors: raw})
}

// ListReports 分页读取项目的上报，最新的在前.
//
//	@Summary		上报列表
//	@Tags			错误上报
//	@Produce		json
//	@Param			projectId	path		string	true	"项目ID"
//	@Param			page		query		int		false	"页码"
//	@Param			pageSize	query		int		false	"每页数量，最大 100"
//	@Success		200			{object}	types.ListReportsResponse
//	@Router			/api/v1/reports/{projectId} [get]
func (h *Handler) ListReports(c *gin.Context) {
	res, err := h.svc.Reports.List(c.Request.Context(), c.Param("projectId"), queryInt(c, "page", 1), queryInt(c, "pageSize", 0))
	if err != nil {
		writeError(c, err, "list reports failed")
		return
	}

	c.JSON(http.StatusOK, res)
}

// ResolveStack 用已上传的 SourceMap 还原一段堆栈，不保存.
//
//	@Summary		还原堆栈
//	@Tags			错误上报
//	@Accept			json
//	@Produce		json
//	@Param			body	body		types.ResolveRequest	true	"堆栈"
//	@Success		200		{object}	types.ResolveResponse
//	@Router			/api/v1/reports/resolve [post]
func (h *Handler) ResolveStack(c *gin.Context) {
	var req types.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.Reports.Resolve(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, "resolve stack failed")
		return
	}

	c.JSON(http.StatusOK, res)
}
