package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrUnknownMod, "mod FQM")
	suite.Equal(ErrUnknownMod, err.Code)
	suite.Equal("未配置的模组", err.Message)
	suite.Equal("mod FQM", err.Details)

	// 多个详情
	err = New(ErrDownloadFailed, "game G1", "status 500")
	suite.Equal("game G1; status 500", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrUploadAmbiguity, "Can only upload one PLR file at a time. %d files were submitted.", 3)
	suite.Equal(ErrUploadAmbiguity, err.Code)
	suite.Equal("Can only upload one PLR file at a time. 3 files were submitted.", err.Details)
	suite.Equal(err.Details, err.Text())
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, ErrConnectivity)
	suite.Equal(ErrConnectivity, wrappedErr.Code)
	suite.Equal("connection refused", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有AppError保留原始错误码
	appErr := New(ErrUnknownEngine, "SE4")
	wrapped := Wrap(appErr, ErrProcessStart, "game G1")
	suite.Equal(ErrUnknownEngine, wrapped.Code)
	suite.Contains(wrapped.Details, "game G1")
	suite.Contains(wrapped.Details, "SE4")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("timeout")
	wrappedErr := Wrapf(originalErr, ErrHoldFailed, "hold on %s", "G1")
	suite.Equal(ErrHoldFailed, wrappedErr.Code)
	suite.Equal("hold on G1", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断，包括fmt包装链
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrAlreadyProcessing)
	suite.True(Is(err, ErrAlreadyProcessing))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrAlreadyProcessing))
	suite.False(Is(errors.New("plain"), ErrUnknown))

	chained := fmt.Errorf("cycle: %w", New(ErrConnectivity))
	suite.True(Is(chained, ErrConnectivity))
	suite.Equal(ErrConnectivity, GetCode(chained))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "game G1"
	suite.Equal("[1002] 资源未找到: game G1", err.Error())
}

func (suite *ErrorsTestSuite) TestText() {
	suite.Equal("", Text(nil))
	suite.Equal("plain", Text(errors.New("plain")))
	suite.Equal("下载失败", Text(New(ErrDownloadFailed)))
	suite.Equal("status 404", Text(New(ErrDownloadFailed, "status 404")))
}

func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	suite.Equal(originalErr, Wrap(originalErr, ErrUnknown).Unwrap())
	suite.Nil(New(ErrUnknown).Unwrap())
	suite.True(errors.Is(Wrap(originalErr, ErrUploadFailed), originalErr))
}

func (suite *ErrorsTestSuite) TestWithCause() {
	err := New(ErrDatabaseQuery)
	cause := errors.New("no such table")
	err.WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("no such table", err.Details)

	// 已有Details的情况
	err2 := New(ErrDatabaseQuery, "查询失败").WithCause(cause)
	suite.Equal("查询失败", err2.Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrNoGameSelected, 404},
		{ErrUnknownMod, 409},
		{ErrEngineInUse, 409},
		{ErrAlreadyProcessing, 409},
		{ErrUploadAmbiguity, 422},
		{ErrTokenInvalid, 401},
		{ErrConnectivity, 502},
		{ErrDatabaseConnect, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, New(tc.code).HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrConnectivity, ErrLoginFailed, ErrDownloadFailed, ErrUploadFailed} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrUnknownMod, ErrUploadAmbiguity, ErrProcessFailed} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestIsConfiguration() {
	for _, code := range []ErrorCode{ErrNoGameSelected, ErrEngineUnconfigured, ErrUnknownEngine, ErrUnknownMod} {
		suite.True(IsConfiguration(New(code)))
	}
	suite.False(IsConfiguration(New(ErrEngineInUse)))
	suite.False(IsConfiguration(New(ErrConnectivity)))
	suite.False(IsConfiguration(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "game G1")
	response := NewErrorResponse(err)
	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Greater(response.Timestamp, int64(0))
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
