// Package api 组装 HTTP 接口：业务路由与 Swagger 文档.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
	"github.com/yeisme/sourcelens/pkg/internal/router"
	"github.com/yeisme/sourcelens/pkg/internal/service"
)

// RegisterGroup 注册业务路由到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine, svc *service.Services, opts router.Options) *gin.Engine {
	router.Register(e, handle.New(svc), opts)
	router.RegisterSwaggerRoute(e, opts)

	return e
}
