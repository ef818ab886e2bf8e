package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/scenarios"
	"github.com/bespoken/bespoken-backend/internal/types"
)

type fakeScenarioStore struct {
	scenario *scenarios.Scenario
}

func (f *fakeScenarioStore) GetScenario(id string) (*scenarios.Scenario, bool) {
	if f.scenario == nil || f.scenario.ID != id {
		return nil, false
	}
	return f.scenario, true
}

func (f *fakeScenarioStore) GetTurnContext(scenarioID string, turnIndex int) (*scenarios.TurnContext, bool) {
	sc, ok := f.GetScenario(scenarioID)
	if !ok {
		return nil, false
	}
	for _, turn := range sc.Turns {
		if turn.TurnIndex == turnIndex {
			return &scenarios.TurnContext{
				ScenarioTitle:       sc.Title,
				ScenarioDescription: sc.Description,
				TurnTranscript:      turn.Transcript,
			}, true
		}
	}
	return nil, false
}

func (f *fakeScenarioStore) ListSummaries() []scenarios.Summary { return nil }

type fakeTurnRepo struct {
	prior   []*types.Turn
	err     error
	created []*types.Turn
}

func (f *fakeTurnRepo) Create(ctx context.Context, tx *gorm.DB, turn *types.Turn) (*types.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, turn)
	return turn, nil
}

func (f *fakeTurnRepo) GetPriorTurns(ctx context.Context, tx *gorm.DB, userID, scenarioID string, beforeIndex, limit int) ([]*types.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.prior) > limit {
		return f.prior[:limit], nil
	}
	return f.prior, nil
}

func (f *fakeTurnRepo) GetByUserAndScenario(ctx context.Context, tx *gorm.DB, userID, scenarioID string) ([]*types.Turn, error) {
	return f.prior, f.err
}

func testScenario() *scenarios.Scenario {
	return &scenarios.Scenario{
		ID:          "happy_hour",
		Title:       "Happy hour",
		Description: "Casual drinks with coworkers",
		Turns: []scenarios.ScriptTurn{
			{TurnIndex: 0, Transcript: "Hey, glad you made it!"},
			{TurnIndex: 1, Transcript: "What are you drinking tonight?"},
			{TurnIndex: 2, Transcript: "Want to grab a table outside?"},
		},
	}
}

func newTestContextWindowService(t *testing.T, store scenarios.Store, repo *fakeTurnRepo, size, maxLen int) ContextWindowService {
	t.Helper()
	cfg := &config.Config{ContextWindowSize: size, ContextLineMaxLen: maxLen}
	return NewContextWindowService(testLogger(t), store, repo, cfg)
}

func TestContextWindowBuild(t *testing.T) {
	store := &fakeScenarioStore{scenario: testScenario()}
	repo := &fakeTurnRepo{prior: []*types.Turn{
		{TurnIndex: 1, Transcript: "Just a soda for me."},
		{TurnIndex: 0, Transcript: "Thanks, me too!"},
	}}
	svc := newTestContextWindowService(t, store, repo, 2, 180)

	window := svc.Build(context.Background(), "user-1", "happy_hour", 2)

	if len(window.PrevPartner) != 2 {
		t.Fatalf("prev_partner: expected 2 lines, got %d", len(window.PrevPartner))
	}
	if window.PrevPartner[0] != "Hey, glad you made it!" || window.PrevPartner[1] != "What are you drinking tonight?" {
		t.Errorf("prev_partner not chronological: %v", window.PrevPartner)
	}
	if len(window.PrevUser) != 2 {
		t.Fatalf("prev_user: expected 2 lines, got %d", len(window.PrevUser))
	}
	// The repo hands back newest first; the window must be oldest first.
	if window.PrevUser[0] != "Thanks, me too!" || window.PrevUser[1] != "Just a soda for me." {
		t.Errorf("prev_user not chronological: %v", window.PrevUser)
	}
}

func TestContextWindowFirstTurn(t *testing.T) {
	store := &fakeScenarioStore{scenario: testScenario()}
	repo := &fakeTurnRepo{}
	svc := newTestContextWindowService(t, store, repo, 2, 180)

	window := svc.Build(context.Background(), "user-1", "happy_hour", 0)
	if !window.Empty() {
		t.Errorf("expected empty window for the first turn, got %+v", window)
	}
}

func TestContextWindowRepoFailureDegrades(t *testing.T) {
	store := &fakeScenarioStore{scenario: testScenario()}
	repo := &fakeTurnRepo{err: errors.New("connection refused")}
	svc := newTestContextWindowService(t, store, repo, 2, 180)

	window := svc.Build(context.Background(), "user-1", "happy_hour", 2)
	if len(window.PrevUser) != 0 {
		t.Errorf("prev_user should be empty on repo failure, got %v", window.PrevUser)
	}
	// The partner side does not depend on the repo.
	if len(window.PrevPartner) != 2 {
		t.Errorf("prev_partner should still be populated, got %v", window.PrevPartner)
	}
}

func TestContextWindowUnknownScenario(t *testing.T) {
	store := &fakeScenarioStore{}
	repo := &fakeTurnRepo{}
	svc := newTestContextWindowService(t, store, repo, 2, 180)

	window := svc.Build(context.Background(), "user-1", "nope", 2)
	if !window.Empty() {
		t.Errorf("expected empty window for unknown scenario, got %+v", window)
	}
}

func TestContextWindowTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	store := &fakeScenarioStore{scenario: &scenarios.Scenario{
		ID:    "happy_hour",
		Title: "Happy hour",
		Turns: []scenarios.ScriptTurn{{TurnIndex: 0, Transcript: long}},
	}}
	repo := &fakeTurnRepo{prior: []*types.Turn{{TurnIndex: 0, Transcript: long}}}
	svc := newTestContextWindowService(t, store, repo, 2, 180)

	window := svc.Build(context.Background(), "user-1", "happy_hour", 1)
	for _, line := range append(window.PrevPartner, window.PrevUser...) {
		runes := []rune(line)
		if len(runes) != 181 {
			t.Errorf("expected 180 runes plus ellipsis, got %d", len(runes))
		}
		if !strings.HasSuffix(line, "…") {
			t.Errorf("truncated line should end with ellipsis: %q", line)
		}
	}
}

func TestContextWindowDisabled(t *testing.T) {
	store := &fakeScenarioStore{scenario: testScenario()}
	repo := &fakeTurnRepo{prior: []*types.Turn{{TurnIndex: 0, Transcript: "hi"}}}
	svc := newTestContextWindowService(t, store, repo, 0, 180)

	window := svc.Build(context.Background(), "user-1", "happy_hour", 2)
	if !window.Empty() {
		t.Errorf("size 0 should disable the window, got %+v", window)
	}
}
