package response

import (
	"net/http"

	"github.com/goauthz/pkg/errors"
	"github.com/gofiber/fiber/v2"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// 响应码定义
const (
	CodeSuccess      = 0
	CodeError        = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 响应消息定义
const (
	MsgSuccess      = "success"
	MsgUnauthorized = "unauthorized"
	MsgForbidden    = "forbidden"
	MsgServerError  = "server error"
)

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *fiber.Ctx, data interface{}, total int64, page, pageSize int) error {
	return c.Status(http.StatusOK).JSON(PageResponse{
		Code:     CodeSuccess,
		Message:  MsgSuccess,
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Error 错误响应，HTTP状态码与业务码一致
func Error(c *fiber.Ctx, code int, message string) error {
	return c.Status(httpStatus(code)).JSON(Response{
		Code:    code,
		Message: message,
	})
}

// FromError 按 AppError 的错误码输出响应，内部原因不对外暴露
func FromError(c *fiber.Ctx, err error) error {
	code := errors.GetCode(err)
	message := errors.GetMessage(err)
	if code >= http.StatusInternalServerError {
		var appErr *errors.AppError
		if !errors.As(err, &appErr) {
			message = MsgServerError
		}
	}
	return Error(c, code, message)
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, CodeError, message)
}

// Unauthorized 未授权
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgUnauthorized
	}
	return Error(c, CodeUnauthorized, message)
}

// Forbidden 禁止访问
func Forbidden(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgForbidden
	}
	return Error(c, CodeForbidden, message)
}

// NotFound 未找到
func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, CodeNotFound, message)
}

// ServerError 服务器错误
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return Error(c, CodeServerError, message)
}

// httpStatus 业务码转HTTP状态码
func httpStatus(code int) int {
	if code >= 400 && code < 600 {
		return code
	}
	return http.StatusOK
}
