package stun

import (
	"fmt"
)

// ErrorCode ERROR-CODE 中的错误码
type ErrorCode int

const (
	CodeBadRequest           ErrorCode = 400
	CodeUnauthorized         ErrorCode = 401
	CodeAllocationMismatch   ErrorCode = 437
	CodeUnsupportedTransport ErrorCode = 442
	CodeInsufficientCapacity ErrorCode = 508
)

// Reason 返回默认原因短语
func (c ErrorCode) Reason() string {
	switch c {
	case CodeBadRequest:
		return "Bad Request"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeAllocationMismatch:
		return "Allocation Mismatch"
	case CodeUnsupportedTransport:
		return "Unsupported Transport Protocol"
	case CodeInsufficientCapacity:
		return "Insufficient Capacity"
	default:
		return "Error"
	}
}

// ErrorCodeValue 编码 ERROR-CODE 属性体
//
// 布局：保留(2) 类别(1，低 3 位) 编号(1) 原因短语(UTF-8)。
func ErrorCodeValue(code ErrorCode, reason string) []byte {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code/100) & 0x07
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	return v
}

// ParseErrorCode 解码 ERROR-CODE 属性体
func ParseErrorCode(v []byte) (ErrorCode, string, error) {
	if len(v) < 4 {
		return 0, "", fmt.Errorf("%w: ERROR-CODE length %d", ErrBadAttribute, len(v))
	}
	code := ErrorCode(int(v[2]&0x07)*100 + int(v[3]))
	return code, string(v[4:]), nil
}

// AddErrorCode 追加 ERROR-CODE 属性，reason 为空时使用默认短语
func (m *Message) AddErrorCode(code ErrorCode, reason string) {
	if reason == "" {
		reason = code.Reason()
	}
	m.Add(AttrErrorCode, ErrorCodeValue(code, reason))
}

// ErrorCode 返回 ERROR-CODE 属性
func (m *Message) ErrorCode() (ErrorCode, string, error) {
	a, ok := m.Get(AttrErrorCode)
	if !ok {
		return 0, "", ErrAttributeNotFound
	}
	return ParseErrorCode(a.Value)
}

// NewErrorResponse 创建携带 ERROR-CODE 的错误响应
func NewErrorResponse(req *Message, code ErrorCode, reason string) *Message {
	resp := NewResponse(req, req.Type.ErrorResponse())
	resp.AddErrorCode(code, reason)
	return resp
}

// ErrorCodeError 线上可见的处理失败
type ErrorCodeError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

// NewError 创建 ErrorCodeError
func NewError(code ErrorCode, reason string, err error) *ErrorCodeError {
	return &ErrorCodeError{Code: code, Reason: reason, Err: err}
}

func (e *ErrorCodeError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = e.Code.Reason()
	}
	if e.Err != nil {
		return fmt.Sprintf("stun error %d (%s): %v", e.Code, reason, e.Err)
	}
	return fmt.Sprintf("stun error %d (%s)", e.Code, reason)
}

// Unwrap 解包错误
func (e *ErrorCodeError) Unwrap() error {
	return e.Err
}
