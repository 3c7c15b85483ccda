package stun

import "errors"

var (
	// ErrMalformedMessage 头部过短或 Magic Cookie 不匹配
	ErrMalformedMessage = errors.New("stun: malformed message")

	// ErrAttributeNotFound 消息中没有请求的属性
	ErrAttributeNotFound = errors.New("stun: attribute not found")

	// ErrBadAttribute 属性值长度或内容非法
	ErrBadAttribute = errors.New("stun: bad attribute value")

	// ErrUnsupportedFamily 非 IPv4 地址族
	ErrUnsupportedFamily = errors.New("stun: unsupported address family")
)
