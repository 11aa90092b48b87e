package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livescore-service/database"
	"livescore-service/logger"
)

// PostgresStore 是 Store 接口的 Postgres 实现。
// 每个写操作在单个事务内完成:先用 SELECT ... FOR UPDATE 锁定比赛行,
// 再写事件/比分/revision,保证读取方永远看不到半完成的状态。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 PostgresStore 实例
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const matchColumns = `id, home_team_id, away_team_id, event_id, scheduled_start, venue,
       status, home_score, away_score, revision, created_at, updated_at`

const eventColumns = `id, match_id, sequence, event_type, minute, team_id, player_id,
       description, ref_event_id, home_delta, away_delta, created_by, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*database.Match, error) {
	var m database.Match
	var venue sql.NullString

	err := row.Scan(&m.ID, &m.HomeTeamID, &m.AwayTeamID, &m.EventID, &m.ScheduledStart,
		&venue, &m.Status, &m.HomeScore, &m.AwayScore, &m.Revision, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if venue.Valid {
		m.Venue = &venue.String
	}
	return &m, nil
}

func scanEvent(row rowScanner) (*database.MatchEvent, error) {
	var ev database.MatchEvent
	var playerID, description, refEventID sql.NullString

	err := row.Scan(&ev.ID, &ev.MatchID, &ev.Sequence, &ev.Type, &ev.Minute, &ev.TeamID,
		&playerID, &description, &refEventID, &ev.HomeDelta, &ev.AwayDelta, &ev.CreatedBy, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	if playerID.Valid {
		ev.PlayerID = &playerID.String
	}
	if description.Valid {
		ev.Description = &description.String
	}
	if refEventID.Valid {
		ev.RefEventID = &refEventID.String
	}
	return &ev, nil
}

// withTx 在事务内执行 fn,出错时回滚
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrUnavailable, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("[PostgresStore] Rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// lockMatch 在事务内锁定比赛行并返回当前状态
func lockMatch(tx *sql.Tx, matchID string) (*database.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`

	m, err := scanMatch(tx.QueryRow(query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: lock match: %v", ErrUnavailable, err)
	}
	return m, nil
}

// CreateMatch 实现 Store 接口
func (s *PostgresStore) CreateMatch(ctx context.Context, m *database.Match) error {
	query := `
		INSERT INTO matches (id, home_team_id, away_team_id, event_id, scheduled_start, venue,
		                     status, home_score, away_score, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`

	_, err := s.db.ExecContext(ctx, query, m.ID, m.HomeTeamID, m.AwayTeamID, m.EventID,
		m.ScheduledStart, m.Venue, m.Status, m.HomeScore, m.AwayScore, m.Revision, time.Now())
	if err != nil {
		return fmt.Errorf("%w: insert match: %v", ErrUnavailable, err)
	}
	return nil
}

// GetMatch 实现 Store 接口
func (s *PostgresStore) GetMatch(ctx context.Context, matchID string) (*database.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(s.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get match: %v", ErrUnavailable, err)
	}
	return m, nil
}

// ListMatches 实现 Store 接口
func (s *PostgresStore) ListMatches(ctx context.Context, status, eventID string, limit, offset int) ([]*database.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR event_id = $2)
		ORDER BY scheduled_start ASC, id ASC
		LIMIT NULLIF($3, 0) OFFSET $4
	`

	rows, err := s.db.QueryContext(ctx, query, status, eventID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list matches: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var matches []*database.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", ErrUnavailable, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// TransitionStatus 实现 Store 接口
func (s *PostgresStore) TransitionStatus(ctx context.Context, matchID, newStatus string) (*database.Match, error) {
	var updated *database.Match

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := lockMatch(tx, matchID)
		if err != nil {
			return err
		}

		if database.IsTerminal(m.Status) {
			return fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
		}
		if !CanTransition(m.Status, newStatus) {
			return fmt.Errorf("%s -> %s: %w", m.Status, newStatus, ErrInvalidTransition)
		}

		now := time.Now()
		_, err = tx.Exec(`UPDATE matches SET status = $1, revision = revision + 1, updated_at = $2 WHERE id = $3`,
			newStatus, now, matchID)
		if err != nil {
			return fmt.Errorf("%w: update status: %v", ErrUnavailable, err)
		}

		m.Status = newStatus
		m.Revision++
		m.UpdatedAt = now
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyScoreDelta 实现 Store 接口
func (s *PostgresStore) ApplyScoreDelta(ctx context.Context, matchID string, homeDelta, awayDelta int) (*database.Match, error) {
	var updated *database.Match

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := lockMatch(tx, matchID)
		if err != nil {
			return err
		}

		if database.IsTerminal(m.Status) {
			return fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
		}

		newHome := m.HomeScore + homeDelta
		newAway := m.AwayScore + awayDelta
		if newHome < 0 || newAway < 0 {
			return fmt.Errorf("score would become %d-%d: %w", newHome, newAway, ErrInvalidAdjustment)
		}

		now := time.Now()
		_, err = tx.Exec(`UPDATE matches SET home_score = $1, away_score = $2, revision = revision + 1, updated_at = $3 WHERE id = $4`,
			newHome, newAway, now, matchID)
		if err != nil {
			return fmt.Errorf("%w: update score: %v", ErrUnavailable, err)
		}

		m.HomeScore = newHome
		m.AwayScore = newAway
		m.Revision++
		m.UpdatedAt = now
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendEvent 实现 Store 接口
func (s *PostgresStore) AppendEvent(ctx context.Context, ev *database.MatchEvent) (*database.MatchEvent, *database.Match, error) {
	var storedEvent *database.MatchEvent
	var updatedMatch *database.Match

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := lockMatch(tx, ev.MatchID)
		if err != nil {
			return err
		}

		if database.IsTerminal(m.Status) {
			return fmt.Errorf("match %s is %s: %w", ev.MatchID, m.Status, ErrMatchClosed)
		}
		if ev.Minute < 0 {
			return fmt.Errorf("minute %d: %w", ev.Minute, ErrInvalidMinute)
		}

		newHome := m.HomeScore + ev.HomeDelta
		newAway := m.AwayScore + ev.AwayDelta
		if newHome < 0 || newAway < 0 {
			return fmt.Errorf("score would become %d-%d: %w", newHome, newAway, ErrInvalidAdjustment)
		}

		// 比赛行已锁定,MAX(sequence)+1 不会与并发追加冲突
		var nextSeq int64
		err = tx.QueryRow(`SELECT COALESCE(MAX(sequence), 0) + 1 FROM match_events WHERE match_id = $1`,
			ev.MatchID).Scan(&nextSeq)
		if err != nil {
			return fmt.Errorf("%w: next sequence: %v", ErrUnavailable, err)
		}

		now := time.Now()
		_, err = tx.Exec(`
			INSERT INTO match_events (id, match_id, sequence, event_type, minute, team_id,
			                          player_id, description, ref_event_id, home_delta, away_delta,
			                          created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			ev.ID, ev.MatchID, nextSeq, ev.Type, ev.Minute, ev.TeamID,
			ev.PlayerID, ev.Description, ev.RefEventID, ev.HomeDelta, ev.AwayDelta,
			ev.CreatedBy, now)
		if err != nil {
			return fmt.Errorf("%w: insert event: %v", ErrUnavailable, err)
		}

		_, err = tx.Exec(`UPDATE matches SET home_score = $1, away_score = $2, revision = revision + 1, updated_at = $3 WHERE id = $4`,
			newHome, newAway, now, ev.MatchID)
		if err != nil {
			return fmt.Errorf("%w: update match: %v", ErrUnavailable, err)
		}

		stored := *ev
		stored.Sequence = nextSeq
		stored.CreatedAt = now
		storedEvent = &stored

		m.HomeScore = newHome
		m.AwayScore = newAway
		m.Revision++
		m.UpdatedAt = now
		updatedMatch = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return storedEvent, updatedMatch, nil
}

// GetEvent 实现 Store 接口
func (s *PostgresStore) GetEvent(ctx context.Context, matchID, eventID string) (*database.MatchEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM match_events WHERE match_id = $1 AND id = $2`

	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, matchID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get event: %v", ErrUnavailable, err)
	}
	return ev, nil
}

// ListEventsSince 实现 Store 接口
func (s *PostgresStore) ListEventsSince(ctx context.Context, matchID string, sinceSequence int64) ([]*database.MatchEvent, error) {
	// 先确认比赛存在,区分 "没有新事件" 和 "比赛不存在"
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + eventColumns + `
		FROM match_events
		WHERE match_id = $1 AND sequence > $2
		ORDER BY minute ASC, sequence ASC
	`

	rows, err := s.db.QueryContext(ctx, query, matchID, sinceSequence)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var events []*database.MatchEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrUnavailable, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Replay 实现 Store 接口
func (s *PostgresStore) Replay(ctx context.Context, matchID string) ([]*database.MatchEvent, error) {
	return s.ListEventsSince(ctx, matchID, 0)
}

// Stats 实现 Store 接口
func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{ByStatus: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&stats.TotalMatches); err != nil {
		return nil, fmt.Errorf("%w: count matches: %v", ErrUnavailable, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("%w: count events: %v", ErrUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM matches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: count by status: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: scan status count: %v", ErrUnavailable, err)
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

// Close 实现 Store 接口
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
