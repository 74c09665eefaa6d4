package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindUpstreamTimeout       Kind = "upstream_timeout"
	KindUpstreamError         Kind = "upstream_error"
	KindUpstreamInternalError Kind = "upstream_internal_error"
	KindUpstreamHTTPError     Kind = "upstream_http_error"
	KindUpstreamUnavailable   Kind = "upstream_unavailable"
	KindInternalError         Kind = "internal_error"
	KindRateLimited           Kind = "rate_limited"

	// KindUpstreamUnhealthy 只作为健康检查失败的指标标签，不会出现在响应体中
	KindUpstreamUnhealthy Kind = "upstream_unhealthy"
)

// Error 网关错误，每个类别携带渲染 HTTP 响应所需的状态码与描述
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Body 转换为响应体
func (e *Error) Body() ErrorBody {
	return ErrorBody{Detail: e.Detail, Error: e.Kind}
}

// InvalidInput 请求参数无效
func InvalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Status: http.StatusBadRequest, Detail: detail}
}

// UpstreamTimeout 上游响应超时
func UpstreamTimeout(err error) *Error {
	return &Error{
		Kind:   KindUpstreamTimeout,
		Status: http.StatusRequestTimeout,
		Detail: "Request timeout - the upstream model is taking too long to respond",
		Err:    err,
	}
}

// UpstreamError 上游返回 500 且带有 error 字段
func UpstreamError(message string) *Error {
	return &Error{
		Kind:   KindUpstreamError,
		Status: http.StatusInternalServerError,
		Detail: "Upstream error: " + message,
	}
}

// UpstreamInternalError 上游返回 500 且响应体无法解析
func UpstreamInternalError(err error) *Error {
	return &Error{
		Kind:   KindUpstreamInternalError,
		Status: http.StatusInternalServerError,
		Detail: "Upstream internal server error",
		Err:    err,
	}
}

// UpstreamHTTPError 上游返回其它非 2xx 状态码，状态码原样透传
func UpstreamHTTPError(status int) *Error {
	return &Error{
		Kind:   KindUpstreamHTTPError,
		Status: status,
		Detail: fmt.Sprintf("Upstream HTTP error: %d", status),
	}
}

// UpstreamUnavailable 无法连接上游
func UpstreamUnavailable(err error) *Error {
	return &Error{
		Kind:   KindUpstreamUnavailable,
		Status: http.StatusServiceUnavailable,
		Detail: fmt.Sprintf("Cannot connect to upstream service: %v. "+
			"Make sure the upstream service is running and the URL is correct.", err),
		Err: err,
	}
}

// InternalError 其它未预期的错误
func InternalError(err error) *Error {
	return &Error{
		Kind:   KindInternalError,
		Status: http.StatusInternalServerError,
		Detail: fmt.Sprintf("Internal server error: %v", err),
		Err:    err,
	}
}

// RateLimited 请求过于频繁
func RateLimited() *Error {
	return &Error{
		Kind:   KindRateLimited,
		Status: http.StatusTooManyRequests,
		Detail: "rate limit exceeded",
	}
}

// AsError 把任意错误转换为 *Error，未知错误视为 InternalError
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return InternalError(err)
}
