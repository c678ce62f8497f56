package errors

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	ErrUnauthorized      = New(401, "未授权")
	ErrTokenExpired      = New(401, "用户token已过期，请重新登录")
	ErrTokenInvalid      = New(401, "用户token已失效，请重新登录")
	ErrSessionRevoked    = New(401, "登录状态已失效，请重新登录")
	ErrUserNotFound      = New(401, "用户不存在")
	ErrInvalidCredential = New(401, "用户名或密码错误")
	ErrCaptchaInvalid    = New(400, "验证码错误")
	ErrPermissionDenied  = New(403, "没有访问权限")
	ErrNotFound          = New(404, "资源不存在")
	ErrInternalServer    = New(500, "服务器内部错误")
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同码同消息视为同一错误，使 Wrap 后的哨兵错误仍可被 errors.Is 识别
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause 在预定义错误上附加内部原因，对外消息不变
func WithCause(base *AppError, cause error) *AppError {
	return &AppError{
		Code:    base.Code,
		Message: base.Message,
		Err:     cause,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsAuth 是否为认证错误(401)
func IsAuth(err error) bool {
	return GetCode(err) == 401
}

// IsPermission 是否为权限错误(403)
func IsPermission(err error) bool {
	return GetCode(err) == 403
}

// NotFound 创建未找到错误
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    404,
		Message: fmt.Sprintf("%s不存在", resource),
	}
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    400,
		Message: message,
	}
}

// Unauthorized 创建未授权错误
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "未授权"
	}
	return &AppError{
		Code:    401,
		Message: message,
	}
}

// Forbidden 创建禁止访问错误
func Forbidden(message string) *AppError {
	if message == "" {
		message = "禁止访问"
	}
	return &AppError{
		Code:    403,
		Message: message,
	}
}

// Internal 创建内部错误
func Internal(message string, err error) *AppError {
	if message == "" {
		message = "服务器内部错误"
	}
	return &AppError{
		Code:    500,
		Message: message,
		Err:     err,
	}
}
