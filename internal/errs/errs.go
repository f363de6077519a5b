// Package errs 定义两条调用链共用的错误分类。
//
// 分类通过 cockroachdb/errors 的 Mark 附加在错误上，errors.Is 可以穿透包装判断分类；
// Error() 只包含面向用户的简短描述，提示信息通过 WithHint 附加，不会出现在 Error() 中。
package errs

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration 所选服务商缺少必填凭据或配置
	ErrConfiguration = errors.New("configuration missing")
	// ErrProviderCall 服务商不可达或返回失败
	ErrProviderCall = errors.New("provider call failed")
	// ErrEmptyResult 服务商返回成功但没有可用内容
	ErrEmptyResult = errors.New("empty result")
	// ErrValidation 请求不满足约束
	ErrValidation = errors.New("invalid request")
)

var (
	Is          = errors.Is
	WithHint    = errors.WithHint
	GetAllHints = errors.GetAllHints
)

func Configuration(format string, args ...any) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrConfiguration)
}

func EmptyResult(format string, args ...any) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrEmptyResult)
}

func Validation(format string, args ...any) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrValidation)
}

// ProviderCall 包装服务商返回的错误
func ProviderCall(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WrapWithDepthf(1, err, format, args...), ErrProviderCall)
}

// Kind 返回错误分类名称，用于日志
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrProviderCall):
		return "provider_call"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "unknown"
	}
}
