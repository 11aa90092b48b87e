package services

import (
	"livescore-service/database"
)

// 更新类型
const (
	UpdateTypeMatchCreated  = "match_created"
	UpdateTypeStatusChanged = "status_changed"
	UpdateTypeEventRecorded = "event_recorded"
	UpdateTypeScoreAdjusted = "score_adjusted"
)

// MatchUpdate 一次成功写入后对外发布的更新。
// Match 携带最新的 revision,订阅方据此判断是否漏掉了更新;
// Event 仅在本次写入追加了事件时存在。
type MatchUpdate struct {
	Type  string               `json:"type"`
	Match *database.Match      `json:"match"`
	Event *database.MatchEvent `json:"event,omitempty"`
}

// Broadcaster 定义了更新发布的抽象接口。
// WebSocket Hub 和 AMQP Publisher 都实现这个接口。
type Broadcaster interface {
	// BroadcastMatchUpdate 发布一次比赛更新 (不阻塞写路径)
	BroadcastMatchUpdate(update *MatchUpdate)
}

// MultiBroadcaster 将更新扇出到多个 Broadcaster
type MultiBroadcaster struct {
	targets []Broadcaster
}

// NewMultiBroadcaster 创建 MultiBroadcaster
func NewMultiBroadcaster(targets ...Broadcaster) *MultiBroadcaster {
	return &MultiBroadcaster{targets: targets}
}

// BroadcastMatchUpdate 实现 Broadcaster 接口
func (b *MultiBroadcaster) BroadcastMatchUpdate(update *MatchUpdate) {
	for _, target := range b.targets {
		if target != nil {
			target.BroadcastMatchUpdate(update)
		}
	}
}
