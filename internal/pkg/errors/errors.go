package errors

import (
	"errors"
	"fmt"
)

// 預定義錯誤類型
var (
	// 規則語言
	ErrParse = errors.New("rule parse failed")

	// 資源與註冊表
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("resource name already exists")
	ErrNotFound   = errors.New("resource not found")
	ErrIndex      = errors.New("priority out of range")

	// 組合流程
	ErrReference  = errors.New("dangling reference")
	ErrPatchApply = errors.New("patch apply failed")
	ErrTemplate   = errors.New("template is invalid")
)

// 錯誤代碼
const (
	CodeParse      = "ParseError"
	CodeValidation = "ValidationError"
	CodeConflict   = "ConflictError"
	CodeNotFound   = "NotFoundError"
	CodeIndex      = "IndexError"
	CodeReference  = "ReferenceError"
	CodePatchApply = "PatchApplyError"
	CodeTemplate   = "TemplateError"
)

// Error 自定義錯誤類型
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 創建新錯誤
func New(code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Parse 規則文本或字典格式錯誤
func Parse(format string, args ...any) error {
	return Wrap(ErrParse, CodeParse, fmt.Sprintf(format, args...))
}

// Validation 結構不變量被破壞
func Validation(format string, args ...any) error {
	return Wrap(ErrValidation, CodeValidation, fmt.Sprintf(format, args...))
}

// Conflict 名稱重複
func Conflict(name string) error {
	return Wrap(ErrConflict, CodeConflict, fmt.Sprintf("名稱 %q 已存在", name))
}

// NotFound 資源不存在
func NotFound(name string) error {
	return Wrap(ErrNotFound, CodeNotFound, fmt.Sprintf("%q 不存在", name))
}

// Index 優先級越界
func Index(priority, length int) error {
	return Wrap(ErrIndex, CodeIndex, fmt.Sprintf("優先級 %d 不在 [0, %d) 範圍內", priority, length))
}

// Reference 懸空引用
func Reference(format string, args ...any) error {
	return Wrap(ErrReference, CodeReference, fmt.Sprintf(format, args...))
}

// Code 返回錯誤鏈中第一個 *Error 的代碼，沒有則為空
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
