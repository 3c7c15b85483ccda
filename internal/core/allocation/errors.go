package allocation

import "errors"

var (
	// ErrAllocationExists 客户端端点已有活跃分配
	ErrAllocationExists = errors.New("allocation: allocation already exists")

	// ErrNoAllocation 客户端端点没有活跃分配
	ErrNoAllocation = errors.New("allocation: no allocation")

	// ErrPortNotReserved 创建分配时端口未处于预留状态
	ErrPortNotReserved = errors.New("allocation: relay port not reserved")

	// ErrStoreClosed 分配表已关闭
	ErrStoreClosed = errors.New("allocation: store closed")

	// ErrSweeperRunning 清理器已启动
	ErrSweeperRunning = errors.New("allocation: sweeper already running")
)
