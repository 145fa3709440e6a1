package service

import "errors"

// 以下错误是 HTTP 层唯一需要识别的业务错误，其余错误一律视为内部故障。
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrNotEntitled         = errors.New("plan does not allow this upload")
	ErrSlugTaken           = errors.New("slug already in use")
	ErrNotFound            = errors.New("deck not found")
	ErrForbidden           = errors.New("deck belongs to another user")
)
