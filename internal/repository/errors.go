package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrConflict 表示唯一约束冲突，例如同一 owner 下 slug 重复。
var ErrConflict = errors.New("repository: record already exists")
