package services

import "errors"

// 错误分类。所有校验失败都以类型化错误返回给调用方,
// 不做静默纠正,也不留下部分写入。
var (
	// ErrNotFound 引用的比赛/事件不存在
	ErrNotFound = errors.New("not found")

	// ErrInvalidReference 球队/赛事/球员 ID 在目录服务中不存在
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidTransition 当前状态不允许请求的状态变更
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMatchClosed 比赛已经 finished/cancelled,不再接受写入
	ErrMatchClosed = errors.New("match closed")

	// ErrInvalidMinute 比赛时间超出范围 (minute < 0)
	ErrInvalidMinute = errors.New("invalid minute")

	// ErrInvalidEventType 事件类型不在已知枚举内
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidAdjustment 比分调整会导致负数比分
	ErrInvalidAdjustment = errors.New("invalid score adjustment")

	// ErrUnavailable 存储层不可用,调用方可以重试
	ErrUnavailable = errors.New("storage unavailable")
)
