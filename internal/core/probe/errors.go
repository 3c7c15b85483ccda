package probe

import "errors"

var (
	// ErrNoServers 没有可用的服务器
	ErrNoServers = errors.New("probe: no servers")

	// ErrNoMappedAddress 响应中没有映射地址
	ErrNoMappedAddress = errors.New("probe: no mapped address in response")

	// ErrTransactionMismatch 响应事务 ID 不匹配
	ErrTransactionMismatch = errors.New("probe: transaction id mismatch")

	// ErrErrorResponse 服务器返回错误响应
	ErrErrorResponse = errors.New("probe: error response")
)

// ProbeError 查询单个服务器失败
type ProbeError struct {
	Server string
	Op     string
	Cause  error
}

func (e *ProbeError) Error() string {
	return "probe: " + e.Server + ": " + e.Op + ": " + e.Cause.Error()
}

// Unwrap 解包错误
func (e *ProbeError) Unwrap() error {
	return e.Cause
}
