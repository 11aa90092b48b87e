package database

import (
	"time"
)

// 比赛状态
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusPaused    = "paused"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
)

// 事件类型
const (
	EventTypeGoal         = "goal"
	EventTypeYellowCard   = "yellow_card"
	EventTypeRedCard      = "red_card"
	EventTypeSubstitution = "substitution"
	EventTypePenalty      = "penalty"
	EventTypeFreeKick     = "free_kick"
	EventTypeCorner       = "corner"
	EventTypeCorrection   = "correction"
	EventTypeOther        = "other"
)

// 比分归属方
const (
	SideHome = "home"
	SideAway = "away"
)

// Match 比赛记录。homeScore/awayScore 是事件日志的缓存投影,
// 随时可以通过 Replay 重新计算出来。
type Match struct {
	ID             string    `db:"id" json:"id"`
	HomeTeamID     string    `db:"home_team_id" json:"home_team_id"`
	AwayTeamID     string    `db:"away_team_id" json:"away_team_id"`
	EventID        string    `db:"event_id" json:"event_id"`
	ScheduledStart time.Time `db:"scheduled_start" json:"scheduled_start"`
	Venue          *string   `db:"venue" json:"venue,omitempty"`
	Status         string    `db:"status" json:"status"`
	HomeScore      int       `db:"home_score" json:"home_score"`
	AwayScore      int       `db:"away_score" json:"away_score"`
	Revision       int64     `db:"revision" json:"revision"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// MatchEvent 比赛事件。追加后不可修改;撤销通过追加 correction 事件完成,
// correction 的 ref_event_id 指向被撤销的事件,home_delta/away_delta 携带反向比分。
// sequence 由事件日志在追加时分配,同一分钟的事件以 sequence 决定先后。
type MatchEvent struct {
	ID          string    `db:"id" json:"id"`
	MatchID     string    `db:"match_id" json:"match_id"`
	Sequence    int64     `db:"sequence" json:"sequence"`
	Type        string    `db:"event_type" json:"type"`
	Minute      int       `db:"minute" json:"minute"`
	TeamID      string    `db:"team_id" json:"team_id"`
	PlayerID    *string   `db:"player_id" json:"player_id,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	RefEventID  *string   `db:"ref_event_id" json:"ref_event_id,omitempty"`
	HomeDelta   int       `db:"home_delta" json:"home_delta"`
	AwayDelta   int       `db:"away_delta" json:"away_delta"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ValidEventType 检查事件类型是否在已知范围内
func ValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeGoal, EventTypeYellowCard, EventTypeRedCard,
		EventTypeSubstitution, EventTypePenalty, EventTypeFreeKick,
		EventTypeCorner, EventTypeCorrection, EventTypeOther:
		return true
	}
	return false
}

// IsTerminal 检查状态是否为终态 (终态后比赛不再接受任何写入)
func IsTerminal(status string) bool {
	return status == StatusFinished || status == StatusCancelled
}
