package services

import (
	"context"

	"livescore-service/database"
)

// LiveFeed 向只读观众暴露比赛状态和事件日志。
// 客户端带着上次看到的 revision 和 sequence 轮询,
// 只收到缺少的部分,不用每次重新拉整场比赛。
type LiveFeed struct {
	store Store
}

// NewLiveFeed 创建 LiveFeed 实例
func NewLiveFeed(store Store) *LiveFeed {
	return &LiveFeed{store: store}
}

// Snapshot 比赛当前状态
type Snapshot struct {
	Match    *database.Match `json:"match"`
	Revision int64           `json:"revision"`
}

// Updates 自客户端上次轮询以来的增量。
// Match 仅在其 revision 大于客户端已知 revision 时返回;
// Events 是 sequence 大于客户端已知 sequence 的全部事件,
// 按 (minute, sequence) 排列,连续无空洞。
type Updates struct {
	Match    *database.Match        `json:"match,omitempty"`
	Revision int64                  `json:"revision"`
	Events   []*database.MatchEvent `json:"events"`
}

// GetSnapshot 返回比赛当前状态和 revision
func (f *LiveFeed) GetSnapshot(ctx context.Context, matchID string) (*Snapshot, error) {
	m, err := f.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Match: m, Revision: m.Revision}, nil
}

// GetUpdatesSince 返回客户端缺少的更新。
// 没有新的写入时,相同的 (clientRevision, clientSequence) 总是得到相同的结果。
//
// 先读事件再读比赛:写入是原子的,这个顺序保证返回的比赛状态
// 至少包含了返回的全部事件的影响,客户端可以幂等地应用。
func (f *LiveFeed) GetUpdatesSince(ctx context.Context, matchID string, clientRevision, clientSequence int64) (*Updates, error) {
	events, err := f.store.ListEventsSince(ctx, matchID, clientSequence)
	if err != nil {
		return nil, err
	}

	m, err := f.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	updates := &Updates{
		Revision: m.Revision,
		Events:   events,
	}
	if m.Revision > clientRevision {
		updates.Match = m
	}
	return updates, nil
}
