package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"livescore-service/database"
	"livescore-service/logger"
)

// MemoryStore 是 Store 接口的内存实现,用于测试和没有数据库的本地开发。
// 语义与 PostgresStore 完全一致:原子写入、连续的 sequence、revision 自增。
type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]*database.Match
	events  map[string][]*database.MatchEvent
}

// NewMemoryStore 创建 MemoryStore 实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]*database.Match),
		events:  make(map[string][]*database.MatchEvent),
	}
}

// CreateMatch 实现 Store 接口
func (s *MemoryStore) CreateMatch(ctx context.Context, m *database.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}

	stored := *m
	s.matches[m.ID] = &stored
	return nil
}

// GetMatch 实现 Store 接口
func (s *MemoryStore) GetMatch(ctx context.Context, matchID string) (*database.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}

	copied := *m
	return &copied, nil
}

// ListMatches 实现 Store 接口
func (s *MemoryStore) ListMatches(ctx context.Context, status, eventID string, limit, offset int) ([]*database.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*database.Match
	for _, m := range s.matches {
		if status != "" && m.Status != status {
			continue
		}
		if eventID != "" && m.EventID != eventID {
			continue
		}
		copied := *m
		all = append(all, &copied)
	}

	// 按开赛时间排序,保证分页结果稳定
	sort.Slice(all, func(i, j int) bool {
		if all[i].ScheduledStart.Equal(all[j].ScheduledStart) {
			return all[i].ID < all[j].ID
		}
		return all[i].ScheduledStart.Before(all[j].ScheduledStart)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// TransitionStatus 实现 Store 接口
func (s *MemoryStore) TransitionStatus(ctx context.Context, matchID, newStatus string) (*database.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}

	if database.IsTerminal(m.Status) {
		return nil, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
	}
	if !CanTransition(m.Status, newStatus) {
		return nil, fmt.Errorf("%s -> %s: %w", m.Status, newStatus, ErrInvalidTransition)
	}

	m.Status = newStatus
	m.Revision++
	m.UpdatedAt = time.Now()

	copied := *m
	return &copied, nil
}

// ApplyScoreDelta 实现 Store 接口
func (s *MemoryStore) ApplyScoreDelta(ctx context.Context, matchID string, homeDelta, awayDelta int) (*database.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if database.IsTerminal(m.Status) {
		return nil, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrMatchClosed)
	}

	newHome := m.HomeScore + homeDelta
	newAway := m.AwayScore + awayDelta
	if newHome < 0 || newAway < 0 {
		return nil, fmt.Errorf("score would become %d-%d: %w", newHome, newAway, ErrInvalidAdjustment)
	}

	m.HomeScore = newHome
	m.AwayScore = newAway
	m.Revision++
	m.UpdatedAt = time.Now()

	copied := *m
	return &copied, nil
}

// AppendEvent 实现 Store 接口
func (s *MemoryStore) AppendEvent(ctx context.Context, ev *database.MatchEvent) (*database.MatchEvent, *database.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[ev.MatchID]
	if !ok {
		return nil, nil, fmt.Errorf("match %s: %w", ev.MatchID, ErrNotFound)
	}
	if database.IsTerminal(m.Status) {
		return nil, nil, fmt.Errorf("match %s is %s: %w", ev.MatchID, m.Status, ErrMatchClosed)
	}
	if ev.Minute < 0 {
		return nil, nil, fmt.Errorf("minute %d: %w", ev.Minute, ErrInvalidMinute)
	}

	// 先校验比分增量,失败时不留下任何写入
	newHome := m.HomeScore + ev.HomeDelta
	newAway := m.AwayScore + ev.AwayDelta
	if newHome < 0 || newAway < 0 {
		return nil, nil, fmt.Errorf("score would become %d-%d: %w", newHome, newAway, ErrInvalidAdjustment)
	}

	// sequence 从 1 开始,连续且不重用 (事件只追加不删除)
	stored := *ev
	stored.Sequence = int64(len(s.events[ev.MatchID])) + 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.events[ev.MatchID] = append(s.events[ev.MatchID], &stored)

	m.HomeScore = newHome
	m.AwayScore = newAway
	m.Revision++
	m.UpdatedAt = time.Now()

	evCopy := stored
	matchCopy := *m
	return &evCopy, &matchCopy, nil
}

// GetEvent 实现 Store 接口
func (s *MemoryStore) GetEvent(ctx context.Context, matchID, eventID string) (*database.MatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.events[matchID] {
		if ev.ID == eventID {
			copied := *ev
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
}

// ListEventsSince 实现 Store 接口
func (s *MemoryStore) ListEventsSince(ctx context.Context, matchID string, sinceSequence int64) ([]*database.MatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.matches[matchID]; !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}

	var result []*database.MatchEvent
	for _, ev := range s.events[matchID] {
		if ev.Sequence > sinceSequence {
			copied := *ev
			result = append(result, &copied)
		}
	}

	// (minute, sequence) 是比赛内事件的全序
	sort.Slice(result, func(i, j int) bool {
		if result[i].Minute == result[j].Minute {
			return result[i].Sequence < result[j].Sequence
		}
		return result[i].Minute < result[j].Minute
	})

	return result, nil
}

// Replay 实现 Store 接口
func (s *MemoryStore) Replay(ctx context.Context, matchID string) ([]*database.MatchEvent, error) {
	return s.ListEventsSince(ctx, matchID, 0)
}

// Stats 实现 Store 接口
func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StoreStats{
		TotalMatches: len(s.matches),
		ByStatus:     make(map[string]int),
	}
	for _, m := range s.matches {
		stats.ByStatus[m.Status]++
	}
	for _, evs := range s.events {
		stats.TotalEvents += len(evs)
	}
	return stats, nil
}

// Close 实现 Store 接口
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.matches = make(map[string]*database.Match)
	s.events = make(map[string][]*database.MatchEvent)

	logger.Println("[MemoryStore] Cleared all matches and events.")
	return nil
}
