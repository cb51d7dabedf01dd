package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// 前置 oauth2-proxy 时由代理注入的邮箱头，按顺序取第一个非空值.
var emailHeaders = []string{"X-Auth-Request-Email", "X-Forwarded-Email"}

// AuthMiddleware 校验调用方身份并写入角色.
// 构建流水线用 Authorization: Bearer <token>，角色跟随 auth.api_tokens 中的配置；
// 浏览器经 oauth2-proxy 访问时按邮箱识别，admin_users 中的邮箱为 admin，其余为 default_role.
// skip_paths 前缀下的请求不校验，角色留给 RoleMiddleware.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	tokens := parseTokens(conf.APITokens)
	fallback := ParseRole(conf.DefaultRole)

	return func(c *gin.Context) {
		if !conf.Enabled || hasPathPrefix(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		if role, ok := bearerRole(c.GetHeader("Authorization"), tokens); ok {
			c.Set(principalGinKey, "token:"+role.String())
			setRole(c, role)
			c.Next()

			return
		}

		email := proxyEmail(c, conf.DevAllowQuery)
		if email == "" {
			c.Header("WWW-Authenticate", `Bearer realm="`+configs.AppName+`"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

			return
		}

		role := fallback
		if slices.Contains(conf.AdminUsers, email) {
			role = RoleAdmin
		}

		c.Set(principalGinKey, email)
		setRole(c, role)
		c.Next()
	}
}

func proxyEmail(c *gin.Context, allowQuery bool) string {
	for _, h := range emailHeaders {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}

	if allowQuery {
		return c.Query("user")
	}

	return ""
}

type apiToken struct {
	secret []byte
	role   Role
}

// parseTokens 条目写作 "role:token" 或只写 token（uploader），前缀不是角色名时整体视为 token.
func parseTokens(raw []string) []apiToken {
	out := make([]apiToken, 0, len(raw))

	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		t := apiToken{secret: []byte(entry), role: RoleUploader}

		if prefix, secret, ok := strings.Cut(entry, ":"); ok && secret != "" && isRoleName(prefix) {
			t = apiToken{secret: []byte(secret), role: ParseRole(prefix)}
		}

		out = append(out, t)
	}

	return out
}

func isRoleName(s string) bool {
	s = strings.ToLower(s)
	return s == "ci" || ParseRole(s).String() == s
}

// bearerRole 逐个常量时间比较，不因匹配位置泄露耗时.
func bearerRole(header string, tokens []apiToken) (Role, bool) {
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || presented == "" {
		return 0, false
	}

	var (
		role  Role
		found bool
	)

	for _, t := range tokens {
		if subtle.ConstantTimeCompare([]byte(presented), t.secret) == 1 && !found {
			role, found = t.role, true
		}
	}

	return role, found
}

// hasPathPrefix path 是否落在任一前缀下，空前缀忽略.
func hasPathPrefix(path string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool {
		p = strings.TrimSpace(p)
		return p != "" && strings.HasPrefix(path, p)
	})
}
