package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/yeisme/sourcelens/docs"
	"github.com/yeisme/sourcelens/pkg/configs"
)

// RegisterSwaggerRoute 在调试模式下挂载 Swagger 文档页.
func RegisterSwaggerRoute(r *gin.Engine, opts Options) {
	if !opts.Swagger {
		return
	}

	docs.SwaggerInfo.Host = opts.Host
	docs.SwaggerInfo.Version = configs.AppVersion

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.DocExpansion("none"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))
}
