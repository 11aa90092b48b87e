package services

import (
	"context"

	"livescore-service/database"
)

// StoreStats 存储统计信息
type StoreStats struct {
	TotalMatches int            `json:"total_matches"`
	TotalEvents  int            `json:"total_events"`
	ByStatus     map[string]int `json:"by_status"`
}

// Store 定义了比赛存储和事件日志的抽象接口。
// 生产环境使用 PostgresStore,测试和本地开发使用 MemoryStore。
//
// 每个写操作都是原子的:事件追加、比分投影更新和 revision 自增
// 要么全部生效,要么全部不生效。读操作永远看不到半完成的写入。
type Store interface {
	// CreateMatch 创建比赛 (scheduled 状态, revision = 0)
	CreateMatch(ctx context.Context, m *database.Match) error

	// GetMatch 获取比赛,不存在时返回 ErrNotFound
	GetMatch(ctx context.Context, matchID string) (*database.Match, error)

	// ListMatches 按条件列出比赛 (status/eventID 为空表示不过滤)
	ListMatches(ctx context.Context, status, eventID string, limit, offset int) ([]*database.Match, error)

	// TransitionStatus 按状态机校验并执行状态变更,成功时 revision 自增。
	// 终态比赛返回 ErrMatchClosed,其余非法转换返回 ErrInvalidTransition。
	TransitionStatus(ctx context.Context, matchID, newStatus string) (*database.Match, error)

	// ApplyScoreDelta 调整缓存比分并自增 revision。
	// 调整后比分为负时返回 ErrInvalidAdjustment,不做截断。
	ApplyScoreDelta(ctx context.Context, matchID string, homeDelta, awayDelta int) (*database.Match, error)

	// AppendEvent 追加事件并在同一个原子操作内应用事件携带的比分增量。
	// 分配该比赛的下一个 sequence (从 1 开始,连续且不重用)。
	// 终态比赛返回 ErrMatchClosed,minute < 0 返回 ErrInvalidMinute。
	AppendEvent(ctx context.Context, ev *database.MatchEvent) (*database.MatchEvent, *database.Match, error)

	// GetEvent 按事件 ID 获取比赛内的单个事件
	GetEvent(ctx context.Context, matchID, eventID string) (*database.MatchEvent, error)

	// ListEventsSince 返回 sequence > sinceSequence 的事件,
	// 按 (minute, sequence) 升序。这是客户端追赶的主通道。
	ListEventsSince(ctx context.Context, matchID string, sinceSequence int64) ([]*database.MatchEvent, error)

	// Replay 返回比赛的完整有序事件序列,用于重算比分投影
	Replay(ctx context.Context, matchID string) ([]*database.MatchEvent, error)

	// Stats 返回存储统计信息
	Stats(ctx context.Context) (*StoreStats, error)

	// Close 释放底层资源
	Close() error
}
