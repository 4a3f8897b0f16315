package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 配置门禁错误 (2000-2999)
	ErrNoGameSelected     ErrorCode = 2000
	ErrEngineUnconfigured ErrorCode = 2001
	ErrUnknownEngine      ErrorCode = 2002
	ErrUnknownMod         ErrorCode = 2003
	ErrEngineInUse        ErrorCode = 2004

	// 回合处理错误 (3000-3999)
	ErrAlreadyProcessing ErrorCode = 3000
	ErrProcessStart      ErrorCode = 3001
	ErrProcessFailed     ErrorCode = 3002
	ErrNothingProcessing ErrorCode = 3003
	ErrArchive           ErrorCode = 3004

	// 通信错误 (4000-4999)
	ErrConnectivity      ErrorCode = 4000
	ErrLoginFailed       ErrorCode = 4001
	ErrDownloadFailed    ErrorCode = 4002
	ErrUploadFailed      ErrorCode = 4003
	ErrUnexpectedStatus  ErrorCode = 4004
	ErrHoldFailed        ErrorCode = 4005
	ErrNotifyFailed      ErrorCode = 4006
	ErrMessageFormat     ErrorCode = 4007
	ErrWebSocketClosed   ErrorCode = 4008

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseUpdate  ErrorCode = 5003
	ErrDatabaseDelete  ErrorCode = 5004

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 上传规则错误 (7000-7999)
	ErrUploadAmbiguity   ErrorCode = 7000
	ErrNoTurnFiles       ErrorCode = 7001
	ErrNothingToDownload ErrorCode = 7002

	// 安全错误 (8000-8999)
	ErrAuthentication ErrorCode = 8000
	ErrTokenExpired   ErrorCode = 8001
	ErrTokenInvalid   ErrorCode = 8002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	// 配置门禁错误
	ErrNoGameSelected:     "未选择游戏",
	ErrEngineUnconfigured: "模组未指定引擎",
	ErrUnknownEngine:      "未配置的游戏引擎",
	ErrUnknownMod:         "未配置的模组",
	ErrEngineInUse:        "引擎仍被模组引用",

	// 回合处理错误
	ErrAlreadyProcessing: "已有回合正在处理",
	ErrProcessStart:      "引擎进程启动失败",
	ErrProcessFailed:     "回合处理失败",
	ErrNothingProcessing: "当前没有正在处理的回合",
	ErrArchive:           "压缩包处理失败",

	// 通信错误
	ErrConnectivity:     "无法连接PBW",
	ErrLoginFailed:      "PBW登录失败",
	ErrDownloadFailed:   "下载失败",
	ErrUploadFailed:     "上传失败",
	ErrUnexpectedStatus: "意外的HTTP状态码",
	ErrHoldFailed:       "设置暂停失败",
	ErrNotifyFailed:     "通知发送失败",
	ErrMessageFormat:    "消息格式错误",
	ErrWebSocketClosed:  "WebSocket连接已关闭",

	// 数据库错误
	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseUpdate:  "数据库更新失败",
	ErrDatabaseDelete:  "数据库删除失败",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 上传规则错误
	ErrUploadAmbiguity:   "匹配到多个回合文件",
	ErrNoTurnFiles:       "没有匹配的回合文件",
	ErrNothingToDownload: "没有可下载的文件",

	// 安全错误
	ErrAuthentication: "认证失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Text 返回面向用户的错误文本（优先详情）
func (e *AppError) Text() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// As 标准库errors.As的转发，便于只导入本包
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// Text 返回错误的用户可读文本
func Text(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Text()
	}
	return err.Error()
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/autopbw/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more || len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam || e.Code == ErrAlreadyExists:
		return 400
	case e.Code == ErrNotFound || e.Code == ErrNoGameSelected:
		return 404
	case e.Code == ErrPermissionDenied:
		return 403
	case e.Code == ErrTimeout:
		return 408
	case e.Code >= 2001 && e.Code <= 2999, e.Code == ErrAlreadyProcessing, e.Code == ErrNothingProcessing:
		return 409
	case e.Code >= 7000 && e.Code <= 7999:
		return 422
	case e.Code >= 8000 && e.Code <= 8999:
		return 401
	case e.Code >= 4000 && e.Code <= 4999:
		return 502
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrTimeout,
		ErrConnectivity,
		ErrLoginFailed,
		ErrDownloadFailed,
		ErrUploadFailed,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsConfiguration 判断是否为引擎/模组配置错误
func IsConfiguration(err error) bool {
	code := GetCode(err)
	return code >= ErrNoGameSelected && code <= ErrUnknownMod
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		Timestamp: time.Now().Unix(),
	}
}
