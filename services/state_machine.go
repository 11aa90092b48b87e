package services

import (
	"livescore-service/database"
)

// 比赛状态机:
//   scheduled → live → paused → live → finished
//   scheduled → cancelled
//   live → cancelled
// finished 和 cancelled 是终态,其余转换一律拒绝。
var allowedTransitions = map[string][]string{
	database.StatusScheduled: {database.StatusLive, database.StatusCancelled},
	database.StatusLive:      {database.StatusPaused, database.StatusFinished, database.StatusCancelled},
	database.StatusPaused:    {database.StatusLive, database.StatusFinished},
}

// CanTransition 检查状态变更是否被状态机允许
func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
