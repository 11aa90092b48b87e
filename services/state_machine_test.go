package services

import (
	"testing"

	"livescore-service/database"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{database.StatusScheduled, database.StatusLive, true},
		{database.StatusScheduled, database.StatusCancelled, true},
		{database.StatusScheduled, database.StatusFinished, false},
		{database.StatusScheduled, database.StatusPaused, false},
		{database.StatusLive, database.StatusPaused, true},
		{database.StatusLive, database.StatusFinished, true},
		{database.StatusLive, database.StatusCancelled, true},
		{database.StatusLive, database.StatusScheduled, false},
		{database.StatusPaused, database.StatusLive, true},
		{database.StatusPaused, database.StatusFinished, true},
		{database.StatusPaused, database.StatusCancelled, false},
		{database.StatusFinished, database.StatusLive, false},
		{database.StatusFinished, database.StatusScheduled, false},
		{database.StatusCancelled, database.StatusLive, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !database.IsTerminal(database.StatusFinished) {
		t.Error("Expected finished to be terminal")
	}
	if !database.IsTerminal(database.StatusCancelled) {
		t.Error("Expected cancelled to be terminal")
	}
	if database.IsTerminal(database.StatusLive) {
		t.Error("Expected live to be non-terminal")
	}
}
