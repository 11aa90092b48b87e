package services

import (
	"context"
	"time"

	"livescore-service/database"
	"livescore-service/logger"
)

// MatchMonitor 定期检查存储中的比赛状态并输出报告。
// 主要用来发现记分员忘记结束的比赛 (live 状态停留过久)。
type MatchMonitor struct {
	store      Store
	staleAfter time.Duration
}

// NewMatchMonitor 创建比赛监控
func NewMatchMonitor(store Store, staleAfter time.Duration) *MatchMonitor {
	return &MatchMonitor{
		store:      store,
		staleAfter: staleAfter,
	}
}

// CheckAndReport 检查并报告
func (m *MatchMonitor) CheckAndReport(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		logger.Errorf("[MatchMonitor] Failed to load stats: %v", err)
		return
	}

	logger.Println("═══════════════════════════════════════════")
	logger.Println("📊 MATCH MONITOR REPORT")
	logger.Printf("  Total matches: %d", stats.TotalMatches)
	logger.Printf("  Total events:  %d", stats.TotalEvents)
	for _, status := range []string{database.StatusScheduled, database.StatusLive, database.StatusPaused, database.StatusFinished, database.StatusCancelled} {
		if count := stats.ByStatus[status]; count > 0 {
			logger.Printf("    %-10s %d", status, count)
		}
	}

	// 检查停留过久的 live/paused 比赛
	stale := 0
	for _, status := range []string{database.StatusLive, database.StatusPaused} {
		matches, err := m.store.ListMatches(ctx, status, "", 0, 0)
		if err != nil {
			logger.Errorf("[MatchMonitor] Failed to list %s matches: %v", status, err)
			continue
		}
		for _, match := range matches {
			if time.Since(match.UpdatedAt) > m.staleAfter {
				stale++
				logger.Printf("⚠️  Match %s has been %s with no updates since %s (score %d-%d)",
					match.ID, match.Status, match.UpdatedAt.Format(time.RFC3339),
					match.HomeScore, match.AwayScore)
			}
		}
	}
	if stale == 0 {
		logger.Println("  No stale matches.")
	}
	logger.Println("═══════════════════════════════════════════")
}

// MonitorPeriodically 定期监控
func (m *MatchMonitor) MonitorPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次
	m.CheckAndReport(ctx)

	// 定期执行
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAndReport(ctx)
		}
	}
}
