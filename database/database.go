package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 比赛表
		`CREATE TABLE IF NOT EXISTS matches (
			id VARCHAR(64) PRIMARY KEY,
			home_team_id VARCHAR(100) NOT NULL,
			away_team_id VARCHAR(100) NOT NULL,
			event_id VARCHAR(100) NOT NULL,
			scheduled_start TIMESTAMP NOT NULL,
			venue VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			home_score INTEGER NOT NULL DEFAULT 0,
			away_score INTEGER NOT NULL DEFAULT 0,
			revision BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_event_id ON matches(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_scheduled_start ON matches(scheduled_start)`,

		// 比赛事件表 (只追加,不修改不删除)
		`CREATE TABLE IF NOT EXISTS match_events (
			id VARCHAR(64) PRIMARY KEY,
			match_id VARCHAR(64) NOT NULL REFERENCES matches(id),
			sequence BIGINT NOT NULL,
			event_type VARCHAR(20) NOT NULL,
			minute INTEGER NOT NULL,
			team_id VARCHAR(100) NOT NULL,
			player_id VARCHAR(100),
			description TEXT,
			ref_event_id VARCHAR(64),
			home_delta INTEGER NOT NULL DEFAULT 0,
			away_delta INTEGER NOT NULL DEFAULT 0,
			created_by VARCHAR(100) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (match_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match_id ON match_events(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match_minute ON match_events(match_id, minute, sequence)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
