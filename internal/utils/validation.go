package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateRecordID 验证记录 ID 格式
func ValidateRecordID(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	// 只允许字母、数字、连字符、下划线
	if !recordIDPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}

	if len(id) > 64 {
		return ErrIDTooLong
	}

	return nil
}

// ValidateKindName 验证记录类型名
func ValidateKindName(kind string) error {
	if strings.TrimSpace(kind) == "" {
		return ErrEmptyKind
	}
	if !recordIDPattern.MatchString(kind) || len(kind) > 32 {
		return ErrInvalidKind
	}
	return nil
}

// StripControl 移除控制字符(保留换行和制表符)
func StripControl(input string) string {
	var result strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyKind       = &ValidationError{Code: "EMPTY_KIND", Message: "record kind cannot be empty"}
	ErrInvalidKind     = &ValidationError{Code: "INVALID_KIND", Message: "record kind is malformed"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
