package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livescore-service/database"
)

func newTestEngine() (*ScoringEngine, *MemoryStore) {
	store := NewMemoryStore()
	engine := NewScoringEngine(store, NewAllowAllDirectory(), nil)
	return engine, store
}

func createTestMatch(t *testing.T, engine *ScoringEngine) *database.Match {
	t.Helper()

	match, err := engine.CreateMatch(context.Background(), "team-home", "team-away", "event-1", time.Now(), nil)
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	return match
}

func TestMatchLifecycle(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if match.Status != database.StatusScheduled {
		t.Errorf("Expected status scheduled, got %s", match.Status)
	}
	if match.HomeScore != 0 || match.AwayScore != 0 {
		t.Errorf("Expected score 0-0, got %d-%d", match.HomeScore, match.AwayScore)
	}
	if match.Revision != 0 {
		t.Errorf("Expected revision 0, got %d", match.Revision)
	}

	started, err := engine.StartMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}
	if started.Status != database.StatusLive {
		t.Errorf("Expected status live, got %s", started.Status)
	}

	goal, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    23,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if err != nil {
		t.Fatalf("RecordEvent(goal) failed: %v", err)
	}
	if goal.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", goal.Sequence)
	}

	card, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeYellowCard,
		Minute:    40,
		TeamID:    "team-away",
		CreatedBy: "scorekeeper-1",
	})
	if err != nil {
		t.Fatalf("RecordEvent(yellow_card) failed: %v", err)
	}
	if card.Sequence != 2 {
		t.Errorf("Expected sequence 2, got %d", card.Sequence)
	}

	current, err := engine.store.GetMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if current.HomeScore != 1 || current.AwayScore != 0 {
		t.Errorf("Expected score 1-0, got %d-%d", current.HomeScore, current.AwayScore)
	}

	finished, err := engine.FinishMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}
	if finished.Status != database.StatusFinished {
		t.Errorf("Expected status finished, got %s", finished.Status)
	}

	_, err = engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    90,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrMatchClosed) {
		t.Errorf("Expected ErrMatchClosed after finish, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	paused, err := engine.PauseMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("PauseMatch failed: %v", err)
	}
	if paused.Status != database.StatusPaused {
		t.Errorf("Expected status paused, got %s", paused.Status)
	}

	// 暂停期间允许补录事件
	if _, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeRedCard,
		Minute:    44,
		TeamID:    "team-away",
		CreatedBy: "scorekeeper-2",
	}); err != nil {
		t.Errorf("RecordEvent during pause failed: %v", err)
	}

	resumed, err := engine.ResumeMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("ResumeMatch failed: %v", err)
	}
	if resumed.Status != database.StatusLive {
		t.Errorf("Expected status live, got %s", resumed.Status)
	}
}

func TestInvalidTransitions(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)

	if _, err := engine.FinishMatch(ctx, match.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for finish on scheduled, got %v", err)
	}
	if _, err := engine.PauseMatch(ctx, match.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pause on scheduled, got %v", err)
	}
	if _, err := engine.ResumeMatch(ctx, match.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for resume on scheduled, got %v", err)
	}

	// scheduled 状态不接受事件
	_, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    1,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for event on scheduled match, got %v", err)
	}

	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}
	if _, err := engine.PauseMatch(ctx, match.ID); err != nil {
		t.Fatalf("PauseMatch failed: %v", err)
	}

	// paused → cancelled 不在允许的转换里
	if _, err := engine.CancelMatch(ctx, match.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for cancel on paused, got %v", err)
	}

	if _, err := engine.FinishMatch(ctx, match.ID); err != nil {
		t.Fatalf("FinishMatch from paused failed: %v", err)
	}

	// 终态后的状态变更一律 ErrMatchClosed
	if _, err := engine.StartMatch(ctx, match.ID); !errors.Is(err, ErrMatchClosed) {
		t.Errorf("Expected ErrMatchClosed for start on finished, got %v", err)
	}
}

func TestCancelMatch(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	scheduled := createTestMatch(t, engine)
	cancelled, err := engine.CancelMatch(ctx, scheduled.ID)
	if err != nil {
		t.Fatalf("CancelMatch on scheduled failed: %v", err)
	}
	if cancelled.Status != database.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", cancelled.Status)
	}

	live := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, live.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}
	if _, err := engine.CancelMatch(ctx, live.ID); err != nil {
		t.Fatalf("CancelMatch on live failed: %v", err)
	}

	_, err = engine.RecordEvent(ctx, live.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    10,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrMatchClosed) {
		t.Errorf("Expected ErrMatchClosed for event on cancelled match, got %v", err)
	}
}

func TestRecordEventValidation(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	_, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    -1,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrInvalidMinute) {
		t.Errorf("Expected ErrInvalidMinute, got %v", err)
	}

	_, err = engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      "own_goal",
		Minute:    10,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("Expected ErrInvalidEventType, got %v", err)
	}

	_, err = engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    10,
		TeamID:    "team-other",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for foreign team, got %v", err)
	}

	_, err = engine.RecordEvent(ctx, "no-such-match", RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    10,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUnknownPlayerRejected(t *testing.T) {
	store := NewMemoryStore()
	directory := &StaticDirectory{
		Teams:   map[string]bool{"team-home": true, "team-away": true},
		Events:  map[string]bool{"event-1": true},
		Players: map[string]bool{"player-9": true},
	}
	engine := NewScoringEngine(store, directory, nil)
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	known := "player-9"
	if _, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    5,
		TeamID:    "team-home",
		PlayerID:  &known,
		CreatedBy: "scorekeeper-1",
	}); err != nil {
		t.Errorf("RecordEvent with known player failed: %v", err)
	}

	unknown := "player-404"
	_, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    6,
		TeamID:    "team-home",
		PlayerID:  &unknown,
		CreatedBy: "scorekeeper-1",
	})
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for unknown player, got %v", err)
	}
}

func TestCreateMatchUnknownTeam(t *testing.T) {
	store := NewMemoryStore()
	directory := &StaticDirectory{
		Teams:  map[string]bool{"team-home": true},
		Events: map[string]bool{"event-1": true},
	}
	engine := NewScoringEngine(store, directory, nil)

	_, err := engine.CreateMatch(context.Background(), "team-home", "team-unknown", "event-1", time.Now(), nil)
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for unknown team, got %v", err)
	}
}

func TestManualScoreAdjustment(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	if _, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    10,
		TeamID:    "team-home",
		CreatedBy: "scorekeeper-1",
	}); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	event, updated, err := engine.ManualScoreAdjustment(ctx, match.ID, database.SideHome, -1, "admin-1", "wrongly attributed")
	if err != nil {
		t.Fatalf("ManualScoreAdjustment failed: %v", err)
	}
	if updated.HomeScore != 0 || updated.AwayScore != 0 {
		t.Errorf("Expected score 0-0 after adjustment, got %d-%d", updated.HomeScore, updated.AwayScore)
	}
	if event.Type != database.EventTypeCorrection {
		t.Errorf("Expected correction event, got %s", event.Type)
	}

	// 事件日志仍然是事实来源: goal + correction 共 2 条,重放得到同样的比分
	events, err := store.Replay(ctx, match.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events in log, got %d", len(events))
	}

	home, away, repaired, err := engine.RecomputeScore(ctx, match.ID)
	if err != nil {
		t.Fatalf("RecomputeScore failed: %v", err)
	}
	if home != 0 || away != 0 {
		t.Errorf("Expected replay to give 0-0, got %d-%d", home, away)
	}
	if repaired {
		t.Error("Expected no repair needed")
	}
}

func TestAdjustmentBelowZeroRejected(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	_, _, err := engine.ManualScoreAdjustment(ctx, match.ID, database.SideAway, -1, "admin-1", "typo")
	if !errors.Is(err, ErrInvalidAdjustment) {
		t.Errorf("Expected ErrInvalidAdjustment, got %v", err)
	}

	// 失败的调整不留下任何事件
	events, err := engine.store.Replay(ctx, match.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected empty event log after rejected adjustment, got %d events", len(events))
	}
}

func TestCorrectionEventInvertsGoal(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	goal, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:      database.EventTypeGoal,
		Minute:    30,
		TeamID:    "team-away",
		CreatedBy: "scorekeeper-1",
	})
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	correction, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
		Type:       database.EventTypeCorrection,
		Minute:     31,
		TeamID:     "team-away",
		RefEventID: &goal.ID,
		CreatedBy:  "scorekeeper-2",
	})
	if err != nil {
		t.Fatalf("RecordEvent(correction) failed: %v", err)
	}
	if correction.AwayDelta != -1 || correction.HomeDelta != 0 {
		t.Errorf("Expected inverse delta (0, -1), got (%d, %d)", correction.HomeDelta, correction.AwayDelta)
	}

	current, err := engine.store.GetMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if current.HomeScore != 0 || current.AwayScore != 0 {
		t.Errorf("Expected score 0-0 after correction, got %d-%d", current.HomeScore, current.AwayScore)
	}
}

func TestConcurrentAppendsGetDenseSequences(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	// 两个记分员在同一分钟并发提交: 所有事件都被接受,
	// sequence 按提交顺序分配,连续无空洞
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
				Type:      database.EventTypeCorner,
				Minute:    55,
				TeamID:    "team-home",
				CreatedBy: "scorekeeper-1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent RecordEvent failed: %v", err)
		}
	}

	events, err := store.ListEventsSince(ctx, match.ID, 0)
	if err != nil {
		t.Fatalf("ListEventsSince failed: %v", err)
	}
	if len(events) != writers {
		t.Fatalf("Expected %d events, got %d", writers, len(events))
	}

	seen := make(map[int64]bool)
	for i, ev := range events {
		if seen[ev.Sequence] {
			t.Errorf("Duplicate sequence %d", ev.Sequence)
		}
		seen[ev.Sequence] = true

		// 同一分钟内按 sequence 升序返回
		if int64(i+1) != ev.Sequence {
			t.Errorf("Expected sequence %d at position %d, got %d", i+1, i, ev.Sequence)
		}
	}

	match2, err := store.GetMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	// 开赛 1 次 + 每个事件 1 次
	if match2.Revision != int64(writers)+1 {
		t.Errorf("Expected revision %d, got %d", writers+1, match2.Revision)
	}
}

func TestEventsOrderedByMinuteThenSequence(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	match := createTestMatch(t, engine)
	if _, err := engine.StartMatch(ctx, match.ID); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	// 补录: 先提交 40 分钟的事件,再补 12 分钟的事件
	for _, minute := range []int{40, 12, 40} {
		if _, err := engine.RecordEvent(ctx, match.ID, RecordEventInput{
			Type:      database.EventTypeFreeKick,
			Minute:    minute,
			TeamID:    "team-home",
			CreatedBy: "scorekeeper-1",
		}); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	events, err := store.Replay(ctx, match.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// (minute, sequence) 全序: 12/seq2, 40/seq1, 40/seq3
	if events[0].Minute != 12 || events[0].Sequence != 2 {
		t.Errorf("Expected (12, 2) first, got (%d, %d)", events[0].Minute, events[0].Sequence)
	}
	if events[1].Minute != 40 || events[1].Sequence != 1 {
		t.Errorf("Expected (40, 1) second, got (%d, %d)", events[1].Minute, events[1].Sequence)
	}
	if events[2].Minute != 40 || events[2].Sequence != 3 {
		t.Errorf("Expected (40, 3) third, got (%d, %d)", events[2].Minute, events[2].Sequence)
	}
}
