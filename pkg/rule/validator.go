// Package rule 包装 go-playground/validator，统一使用 rule 标签.
// 额外注册的规则：
//   - semver：x.y.z 三段数字版本号
//   - safepath：相对路径，不含 ".." 段、反斜杠与控制字符，SourceMap 文件名会成为对象存储的键
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	inst *validator.Validate
	once sync.Once
)

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// initValidator 尝试复用 gin 的 validator 引擎，使 ShouldBind 也按 rule 标签校验.
func initValidator() {
	inst = validator.New()

	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(jsonName)

	_ = inst.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return IsSemver(fl.Field().String())
	})
	_ = inst.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		return IsSafePath(fl.Field().String())
	})
}

// IsSafePath 判断 p 是否为安全的相对路径.
func IsSafePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsRune(p, '\\') {
		return false
	}

	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	for seg := range strings.SplitSeq(p, "/") {
		if seg == ".." {
			return false
		}
	}

	return true
}

// jsonName 错误信息中使用 json 字段名.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}

	if name == "" {
		return f.Name
	}

	return name
}

func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate，若未初始化则先初始化.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// IsSemver 判断是否为 x.y.z 形式的版本号.
func IsSemver(v string) bool {
	return semverRe.MatchString(v)
}

// RegisterValidation 注册自定义规则.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 是格式化后的验证错误字典，键为 json 字段名，值为可读错误信息.
type ValidationErrors map[string]string

// Errors 把校验错误展开为字段字典，非校验错误返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on %s=%s", fe.Tag(), fe.Param())
		}

		out[fe.Namespace()] = msg
	}

	return out
}

// ValidateStruct 对结构体执行完整校验，返回原始 error（可用 Errors 解析）.
func ValidateStruct(s any) error {
	lazyInit()

	return inst.Struct(s)
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar("1.2.3", "required,semver").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}
