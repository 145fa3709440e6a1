package convert

import "fmt"

// Code 对远程转换失败做粗粒度分类，直接出现在 HTTP 响应里。
type Code string

const (
	CodeConfig      Code = "config"
	CodeNotFound    Code = "not_found"
	CodeDownload    Code = "download"
	CodeConversion  Code = "conversion"
	CodeEmptyResult Code = "empty_result"
	CodeUpload      Code = "upload"
	CodeRecord      Code = "record"
)

// Error 是转换流程对外暴露的唯一错误类型。
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("convert %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// APIError 是转换服务返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conversion service returned %d: %s", e.Status, e.Message)
}

// HTTPStatus 供重试分类使用。
func (e *APIError) HTTPStatus() int { return e.Status }
