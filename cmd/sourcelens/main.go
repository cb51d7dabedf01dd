// Command sourcelens 运行 SourceMap 服务，并提供配置、存储与队列相关的运维子命令.
package main

import (
	"os"

	"github.com/yeisme/sourcelens/pkg/cmd"
)

//	@title			SourceLens API
//	@version		1.0
//	@description	存储前端 SourceMap，把压缩后的错误堆栈还原到源码位置，并管理发布版本.
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

func main() {
	// cobra 已经打印了错误
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
