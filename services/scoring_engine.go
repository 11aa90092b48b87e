package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"livescore-service/database"
	"livescore-service/logger"
)

// ScoringEngine 是比赛状态和比分的唯一写入方。
// 所有写操作先取得该比赛的互斥锁,再在一个原子存储操作内完成校验和写入,
// 两个记分员并发提交时按获得锁的先后顺序生效。
type ScoringEngine struct {
	store       Store
	directory   Directory
	broadcaster Broadcaster
	locks       *matchLocks
}

// NewScoringEngine 创建 ScoringEngine 实例
func NewScoringEngine(store Store, directory Directory, broadcaster Broadcaster) *ScoringEngine {
	return &ScoringEngine{
		store:       store,
		directory:   directory,
		broadcaster: broadcaster,
		locks:       newMatchLocks(),
	}
}

// RecordEventInput 记分员提交的事件
type RecordEventInput struct {
	Type        string  `json:"type"`
	Minute      int     `json:"minute"`
	TeamID      string  `json:"team_id"`
	PlayerID    *string `json:"player_id,omitempty"`
	Description *string `json:"description,omitempty"`
	RefEventID  *string `json:"ref_event_id,omitempty"`
	CreatedBy   string  `json:"created_by"`
}

// CreateMatch 创建比赛 (scheduled 状态)。
// 球队和赛事 ID 必须在目录服务中存在。
func (e *ScoringEngine) CreateMatch(ctx context.Context, homeTeamID, awayTeamID, eventID string, scheduledStart time.Time, venue *string) (*database.Match, error) {
	for _, teamID := range []string{homeTeamID, awayTeamID} {
		ok, err := e.directory.ValidTeam(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("team %s: %w", teamID, ErrInvalidReference)
		}
	}

	ok, err := e.directory.ValidEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrInvalidReference)
	}

	now := time.Now()
	match := &database.Match{
		ID:             uuid.NewString(),
		HomeTeamID:     homeTeamID,
		AwayTeamID:     awayTeamID,
		EventID:        eventID,
		ScheduledStart: scheduledStart,
		Venue:          venue,
		Status:         database.StatusScheduled,
		Revision:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	logger.Printf("[ScoringEngine] Match created: %s (%s vs %s)", match.ID, homeTeamID, awayTeamID)
	e.broadcast(&MatchUpdate{Type: UpdateTypeMatchCreated, Match: match})
	return match, nil
}

// StartMatch 开始比赛 (scheduled → live)
func (e *ScoringEngine) StartMatch(ctx context.Context, matchID string) (*database.Match, error) {
	return e.transition(ctx, matchID, database.StatusLive, database.StatusScheduled)
}

// PauseMatch 暂停比赛 (live → paused)
func (e *ScoringEngine) PauseMatch(ctx context.Context, matchID string) (*database.Match, error) {
	return e.transition(ctx, matchID, database.StatusPaused, database.StatusLive)
}

// ResumeMatch 恢复比赛 (paused → live)
func (e *ScoringEngine) ResumeMatch(ctx context.Context, matchID string) (*database.Match, error) {
	return e.transition(ctx, matchID, database.StatusLive, database.StatusPaused)
}

// FinishMatch 结束比赛 (live/paused → finished)。此后不再接受任何事件。
func (e *ScoringEngine) FinishMatch(ctx context.Context, matchID string) (*database.Match, error) {
	return e.transition(ctx, matchID, database.StatusFinished, database.StatusLive, database.StatusPaused)
}

// CancelMatch 取消比赛 (scheduled/live → cancelled)
func (e *ScoringEngine) CancelMatch(ctx context.Context, matchID string) (*database.Match, error) {
	return e.transition(ctx, matchID, database.StatusCancelled, database.StatusScheduled, database.StatusLive)
}

// transition 在比赛锁内执行状态变更。
// allowedFrom 是本操作要求的当前状态,状态机本身由存储层再校验一次。
func (e *ScoringEngine) transition(ctx context.Context, matchID, target string, allowedFrom ...string) (*database.Match, error) {
	lock := e.locks.get(matchID)
	lock.Lock()
	defer lock.Unlock()

	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	fromAllowed := false
	for _, status := range allowedFrom {
		if m.Status == status {
			fromAllowed = true
			break
		}
	}
	if !fromAllowed {
		if database.IsTerminal(m.Status) {
			return nil, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
		}
		return nil, fmt.Errorf("%s -> %s: %w", m.Status, target, ErrInvalidTransition)
	}

	updated, err := e.store.TransitionStatus(ctx, matchID, target)
	if err != nil {
		return nil, err
	}

	logger.Printf("[ScoringEngine] Match %s: %s -> %s (revision %d)", matchID, m.Status, target, updated.Revision)
	e.broadcast(&MatchUpdate{Type: UpdateTypeStatusChanged, Match: updated})
	return updated, nil
}

// RecordEvent 记录比赛事件。
// 只有 live/paused 状态接受事件 (暂停期间允许补录红黄牌)。
// goal 事件给对应球队 +1;correction 事件引用被撤销的事件并携带反向比分。
func (e *ScoringEngine) RecordEvent(ctx context.Context, matchID string, input RecordEventInput) (*database.MatchEvent, error) {
	if !database.ValidEventType(input.Type) {
		return nil, fmt.Errorf("event type %q: %w", input.Type, ErrInvalidEventType)
	}
	if input.Minute < 0 {
		return nil, fmt.Errorf("minute %d: %w", input.Minute, ErrInvalidMinute)
	}

	lock := e.locks.get(matchID)
	lock.Lock()
	defer lock.Unlock()

	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if database.IsTerminal(m.Status) {
		return nil, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
	}
	if m.Status != database.StatusLive && m.Status != database.StatusPaused {
		return nil, fmt.Errorf("match %s not started yet: %w", matchID, ErrInvalidTransition)
	}

	if input.TeamID != m.HomeTeamID && input.TeamID != m.AwayTeamID {
		return nil, fmt.Errorf("team %s not in match %s: %w", input.TeamID, matchID, ErrInvalidReference)
	}

	if input.PlayerID != nil {
		ok, err := e.directory.ValidPlayer(ctx, *input.PlayerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("player %s: %w", *input.PlayerID, ErrInvalidReference)
		}
	}

	homeDelta, awayDelta := 0, 0
	switch input.Type {
	case database.EventTypeGoal:
		if input.TeamID == m.HomeTeamID {
			homeDelta = 1
		} else {
			awayDelta = 1
		}
	case database.EventTypeCorrection:
		// correction 撤销被引用的事件:比分增量取其反向
		if input.RefEventID != nil {
			ref, err := e.store.GetEvent(ctx, matchID, *input.RefEventID)
			if err != nil {
				return nil, err
			}
			homeDelta = -ref.HomeDelta
			awayDelta = -ref.AwayDelta
		}
	}

	event := &database.MatchEvent{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Type:        input.Type,
		Minute:      input.Minute,
		TeamID:      input.TeamID,
		PlayerID:    input.PlayerID,
		Description: input.Description,
		RefEventID:  input.RefEventID,
		HomeDelta:   homeDelta,
		AwayDelta:   awayDelta,
		CreatedBy:   input.CreatedBy,
	}

	stored, updated, err := e.store.AppendEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	logger.Printf("[ScoringEngine] Match %s: %s at minute %d (seq %d, score %d-%d)",
		matchID, stored.Type, stored.Minute, stored.Sequence, updated.HomeScore, updated.AwayScore)
	e.broadcast(&MatchUpdate{Type: UpdateTypeEventRecorded, Match: updated, Event: stored})
	return stored, nil
}

// ManualScoreAdjustment 人工比分修正。
// 同时追加一条 correction 事件,保证事件日志始终是可审计的事实来源,
// 之后的 Replay 会重算出同样的比分。
func (e *ScoringEngine) ManualScoreAdjustment(ctx context.Context, matchID, side string, delta int, createdBy, reason string) (*database.MatchEvent, *database.Match, error) {
	if side != database.SideHome && side != database.SideAway {
		return nil, nil, fmt.Errorf("side %q: %w", side, ErrInvalidAdjustment)
	}
	if delta == 0 {
		return nil, nil, fmt.Errorf("zero delta: %w", ErrInvalidAdjustment)
	}

	lock := e.locks.get(matchID)
	lock.Lock()
	defer lock.Unlock()

	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if database.IsTerminal(m.Status) {
		return nil, nil, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
	}

	homeDelta, awayDelta := 0, 0
	teamID := m.HomeTeamID
	if side == database.SideHome {
		homeDelta = delta
	} else {
		awayDelta = delta
		teamID = m.AwayTeamID
	}

	// correction 挂在目前最大的比赛分钟上,使其在 (minute, sequence) 全序中排在已有事件之后
	minute := 0
	events, err := e.store.Replay(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	for _, ev := range events {
		if ev.Minute > minute {
			minute = ev.Minute
		}
	}

	event := &database.MatchEvent{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Type:        database.EventTypeCorrection,
		Minute:      minute,
		TeamID:      teamID,
		Description: &reason,
		HomeDelta:   homeDelta,
		AwayDelta:   awayDelta,
		CreatedBy:   createdBy,
	}

	stored, updated, err := e.store.AppendEvent(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	logger.Printf("[ScoringEngine] Match %s: manual adjustment %s %+d by %s (score %d-%d)",
		matchID, side, delta, createdBy, updated.HomeScore, updated.AwayScore)
	e.broadcast(&MatchUpdate{Type: UpdateTypeScoreAdjusted, Match: updated, Event: stored})
	return stored, updated, nil
}

// RecomputeScore 重放事件日志并核对比分投影。
// 发现漂移且比赛未进入终态时,原地修复投影并返回 repaired = true。
func (e *ScoringEngine) RecomputeScore(ctx context.Context, matchID string) (home, away int, repaired bool, err error) {
	lock := e.locks.get(matchID)
	lock.Lock()
	defer lock.Unlock()

	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return 0, 0, false, err
	}

	events, err := e.store.Replay(ctx, matchID)
	if err != nil {
		return 0, 0, false, err
	}

	for _, ev := range events {
		home += ev.HomeDelta
		away += ev.AwayDelta
	}

	if home == m.HomeScore && away == m.AwayScore {
		return home, away, false, nil
	}

	logger.Errorf("[ScoringEngine] Match %s: projection drift, cached %d-%d but replay gives %d-%d",
		matchID, m.HomeScore, m.AwayScore, home, away)

	if database.IsTerminal(m.Status) {
		// 终态比赛不再接受写入,只报告不修复
		return home, away, false, nil
	}

	updated, err := e.store.ApplyScoreDelta(ctx, matchID, home-m.HomeScore, away-m.AwayScore)
	if err != nil {
		return home, away, false, err
	}

	e.broadcast(&MatchUpdate{Type: UpdateTypeScoreAdjusted, Match: updated})
	return home, away, true, nil
}

func (e *ScoringEngine) broadcast(update *MatchUpdate) {
	if e.broadcaster != nil {
		e.broadcaster.BroadcastMatchUpdate(update)
	}
}
