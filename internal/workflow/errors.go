package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAlreadyProcessing 同一条记录已有未完成的操作
	ErrAlreadyProcessing = errors.New("record is already being processed")
	// ErrRecordNotFound 记录不在当前页面的记录集中
	ErrRecordNotFound = errors.New("record not found")
	// ErrDeclined 用户取消了确认
	ErrDeclined = errors.New("action declined by user")
	// ErrClosed 页面已关闭,迟到的结果不再写入
	ErrClosed = errors.New("page is closed")
)

// ValidationError 客户端校验错误,不会发出网络请求
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError 创建单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add 追加字段错误
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty 是否没有错误
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	return "validation failed: " + joinFields(e.Fields)
}

// RemoteError 服务端拒绝(校验失败、权限不足、状态过期等)
type RemoteError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
	if len(e.Fields) > 0 {
		msg += ": " + joinFields(e.Fields)
	}
	return msg
}

// NetworkError 传输层错误
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to %s, please try again: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ErrorKind 错误分类
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindValidation        ErrorKind = "validation"
	KindAlreadyProcessing ErrorKind = "already_processing"
	KindRemoteRejected    ErrorKind = "remote_rejected"
	KindNetworkFailure    ErrorKind = "network_failure"
	KindRecordNotFound    ErrorKind = "record_not_found"
	KindDeclined          ErrorKind = "declined"
	KindClosed            ErrorKind = "closed"
)

// Classify 将错误归入分类,未知错误视为网络错误
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var verr *ValidationError
	var rerr *RemoteError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrAlreadyProcessing):
		return KindAlreadyProcessing
	case errors.As(err, &rerr):
		return KindRemoteRejected
	case errors.Is(err, ErrRecordNotFound):
		return KindRecordNotFound
	case errors.Is(err, ErrDeclined):
		return KindDeclined
	case errors.Is(err, ErrClosed):
		return KindClosed
	}
	return KindNetworkFailure
}

// asRemoteFailure 把远程调用返回的任意错误转换为 RemoteError 或 NetworkError
func asRemoteFailure(op string, err error) error {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return nerr
	}
	return &NetworkError{Op: op, Err: err}
}

func joinFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}
