package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/errors"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorCodes 应用错误码到接口错误码
var errorCodes = map[errors.ErrorCode]string{
	errors.ErrInvalidParam:       "INVALID_REQUEST",
	errors.ErrNotFound:           "NOT_FOUND",
	errors.ErrCanceled:           "UNAVAILABLE",
	errors.ErrNoGameSelected:     "NO_GAME_SELECTED",
	errors.ErrEngineUnconfigured: "ENGINE_UNCONFIGURED",
	errors.ErrUnknownEngine:      "UNKNOWN_ENGINE",
	errors.ErrUnknownMod:         "UNKNOWN_MOD",
	errors.ErrEngineInUse:        "ENGINE_IN_USE",
	errors.ErrAlreadyProcessing:  "ALREADY_PROCESSING",
	errors.ErrNothingProcessing:  "NOTHING_PROCESSING",
	errors.ErrProcessStart:       "PROCESS_START_FAILED",
	errors.ErrUploadAmbiguity:    "UPLOAD_AMBIGUOUS",
	errors.ErrNoTurnFiles:        "NO_TURN_FILES",
	errors.ErrNothingToDownload:  "NOTHING_TO_DOWNLOAD",
	errors.ErrAuthentication:     "INVALID_CREDENTIALS",
	errors.ErrTokenExpired:       "TOKEN_EXPIRED",
	errors.ErrTokenInvalid:       "INVALID_TOKEN",
}

// respondError 按错误码写出错误响应
func respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}

	status := appErr.HTTPStatus()
	if appErr.Code == errors.ErrCanceled {
		status = http.StatusServiceUnavailable
	}

	code, ok := errorCodes[appErr.Code]
	if !ok {
		switch {
		case status == http.StatusBadGateway:
			code = "PBW_ERROR"
		case status >= http.StatusInternalServerError:
			code = "INTERNAL_ERROR"
		default:
			code = "REQUEST_FAILED"
		}
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: appErr.Message,
		Details: appErr.Text(),
	})
}

// badRequest 请求参数错误
func badRequest(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    "INVALID_REQUEST",
		Message: "请求参数错误",
		Details: details,
	})
}
