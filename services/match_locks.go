package services

import (
	"sync"
)

// matchLocks 按 matchID 维护互斥锁。
// 同一场比赛的所有写入 (状态变更/比分调整/事件追加) 必须持有该比赛的锁,
// 保证 sequence 分配和比分投影不会被并发写入打乱;
// 不同比赛互不影响,可以并行写入。
type matchLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMatchLocks() *matchLocks {
	return &matchLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// get 获取指定比赛的锁,不存在时创建
func (l *matchLocks) get(matchID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[matchID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[matchID] = lock
	}
	return lock
}
