package repos

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bespoken/bespoken-backend/internal/repos/testutil"
	"github.com/bespoken/bespoken-backend/internal/types"
)

func TestTurnRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewTurnRepo(db, testutil.Logger(t))
	ctx := context.Background()

	feedback, _ := json.Marshal(map[string]any{"tip": "Nice!", "grade": "green"})

	for i := 0; i < 4; i++ {
		turn := &types.Turn{
			UserID:     "user-1",
			ScenarioID: "happy_hour",
			TurnIndex:  i,
			AudioURL:   "https://example.com/audio.wav",
			Transcript: "hello there",
			Feedback:   feedback,
		}
		if _, err := repo.Create(ctx, tx, turn); err != nil {
			t.Fatalf("Create turn %d: %v", i, err)
		}
	}

	// One row for a different learner that must never leak into results.
	other := &types.Turn{
		UserID:     "user-2",
		ScenarioID: "happy_hour",
		TurnIndex:  0,
		AudioURL:   "https://example.com/other.wav",
		Transcript: "different learner",
	}
	if _, err := repo.Create(ctx, tx, other); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	prior, err := repo.GetPriorTurns(ctx, tx, "user-1", "happy_hour", 3, 2)
	if err != nil {
		t.Fatalf("GetPriorTurns: %v", err)
	}
	if len(prior) != 2 {
		t.Fatalf("GetPriorTurns: expected 2 turns, got %d", len(prior))
	}
	if prior[0].TurnIndex != 2 || prior[1].TurnIndex != 1 {
		t.Fatalf("GetPriorTurns: expected indexes [2 1], got [%d %d]", prior[0].TurnIndex, prior[1].TurnIndex)
	}

	prior, err = repo.GetPriorTurns(ctx, tx, "user-1", "happy_hour", 0, 2)
	if err != nil {
		t.Fatalf("GetPriorTurns (before first): %v", err)
	}
	if len(prior) != 0 {
		t.Fatalf("GetPriorTurns (before first): expected 0 turns, got %d", len(prior))
	}

	all, err := repo.GetByUserAndScenario(ctx, tx, "user-1", "happy_hour")
	if err != nil {
		t.Fatalf("GetByUserAndScenario: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("GetByUserAndScenario: expected 4 turns, got %d", len(all))
	}
	for i, turn := range all {
		if turn.TurnIndex != i {
			t.Fatalf("GetByUserAndScenario: expected ascending order, got index %d at position %d", turn.TurnIndex, i)
		}
		if turn.UserID != "user-1" {
			t.Fatalf("GetByUserAndScenario: leaked turn for %s", turn.UserID)
		}
	}
}

func TestTurnRepoEmptyFilters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewTurnRepo(db, testutil.Logger(t))
	ctx := context.Background()

	prior, err := repo.GetPriorTurns(ctx, tx, "", "happy_hour", 5, 2)
	if err != nil {
		t.Fatalf("GetPriorTurns: %v", err)
	}
	if len(prior) != 0 {
		t.Fatalf("GetPriorTurns: expected no results without user_id, got %d", len(prior))
	}

	all, err := repo.GetByUserAndScenario(ctx, tx, "user-1", "")
	if err != nil {
		t.Fatalf("GetByUserAndScenario: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("GetByUserAndScenario: expected no results without scenario_id, got %d", len(all))
	}
}
