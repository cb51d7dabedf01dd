// Package handle 提供 HTTP 请求处理器，参数校验后调用 service 层.
package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/rule"
)

// Handler 持有业务服务，路由通过方法值绑定.
type Handler struct {
	svc *service.Services
}

// New 创建 Handler，同时让 gin 的绑定校验使用 rule 标签.
func New(svc *service.Services) *Handler {
	rule.Engine()

	return &Handler{svc: svc}
}

// statusOf 业务错误到 HTTP 状态码.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error, msg string) {
	status := statusOf(err)

	l := log.Logger()
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	} else {
		l.Warn().Err(err).Str("path", c.FullPath()).Msg(msg)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// bindError 请求参数错误，校验失败时附带字段明细.
func bindError(c *gin.Context, err error) {
	l := log.Logger()
	l.Warn().Err(err).Str("path", c.FullPath()).Msg("invalid request")

	body := gin.H{"error": err.Error()}
	if fields := rule.Errors(err); fields != nil {
		body["fields"] = fields
	}

	c.JSON(http.StatusBadRequest, body)
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}

	return v
}

// withoutContent 列表接口不返回文件内容.
func withoutContent(rows []*model.SourceMap) []*model.SourceMap {
	out := make([]*model.SourceMap, 0, len(rows))
	for _, r := range rows {
		c := r.Clone()
		c.Content = ""
		out = append(out, c)
	}

	return out
}
