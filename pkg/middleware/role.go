package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Role 请求方角色，数值越大权限越高.
//   - viewer：查询、解析、上报错误
//   - uploader：构建流水线上传 SourceMap、创建版本
//   - admin：删除、回滚、批量清理
type Role int

const (
	RoleViewer Role = iota + 1
	RoleUploader
	RoleAdmin
)

var roleNames = map[Role]string{RoleViewer: "viewer", RoleUploader: "uploader", RoleAdmin: "admin"}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}

	return roleNames[RoleViewer]
}

type roleKey struct{}

const (
	roleGinKey      = "sourcelens.role"
	principalGinKey = "sourcelens.principal"
)

// ParseRole 未知值降级为 viewer，ci 是 uploader 的别名.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ci" {
		return RoleUploader
	}

	for r, name := range roleNames {
		if name == s {
			return r
		}
	}

	return RoleViewer
}

// RoleMiddleware 为还没有角色的请求补上角色：trustHeader 时取 X-Role，否则取 fallback.
func RoleMiddleware(fallback Role, trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(roleGinKey); !ok {
			r := fallback
			if h := c.GetHeader("X-Role"); trustHeader && h != "" {
				r = ParseRole(h)
			}

			setRole(c, r)
		}

		c.Next()
	}
}

func setRole(c *gin.Context, r Role) {
	c.Set(roleGinKey, r)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), roleKey{}, r))
}

// RoleFromContext service 层取角色，缺省为 viewer.
func RoleFromContext(ctx context.Context) Role {
	r, ok := ctx.Value(roleKey{}).(Role)
	if !ok {
		return RoleViewer
	}

	return r
}

// GetRole 当前请求的角色.
func GetRole(c *gin.Context) Role {
	if r, ok := c.Value(roleGinKey).(Role); ok {
		return r
	}

	return RoleFromContext(c.Request.Context())
}

// GetPrincipal 认证通过的调用方：邮箱或 "token:<role>"，未认证时为空.
func GetPrincipal(c *gin.Context) string {
	return c.GetString(principalGinKey)
}

// RequireMinRole 角色不足时返回 403.
func RequireMinRole(minRole Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) >= minRole {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: requires role " + minRole.String()})
	}
}
