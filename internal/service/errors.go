package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound 记录或类型不存在
	ErrNotFound = errors.New("not found")
	// ErrForbidden 调用者角色不允许该操作
	ErrForbidden = errors.New("forbidden")
	// ErrConflict 记录状态已被并发修改
	ErrConflict = errors.New("record status has changed, reload and try again")
)

// FieldErrors 字段校验错误,对应 422 响应中的 errors
type FieldErrors struct {
	Fields map[string][]string
}

// NewFieldErrors 创建单字段错误
func NewFieldErrors(field, message string) *FieldErrors {
	fe := &FieldErrors{}
	fe.Add(field, message)
	return fe
}

// Add 追加字段错误
func (e *FieldErrors) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty 是否没有错误
func (e *FieldErrors) Empty() bool {
	return len(e.Fields) == 0
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
