package relay

import "errors"

// 错误响应的底层原因
var (
	ErrMissingUsername      = errors.New("relay: missing username")
	ErrUnknownUsername      = errors.New("relay: unknown username")
	ErrUnsupportedTransport = errors.New("relay: unsupported transport")
	ErrNoRelayPort          = errors.New("relay: no relay port available")
	ErrMissingPeer          = errors.New("relay: missing peer address")
	ErrBadLifetime          = errors.New("relay: bad lifetime attribute")
)

// reasonAllocationExists 重复分配时的原因短语
const reasonAllocationExists = "Allocation Already Exists"
