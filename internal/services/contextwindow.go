package services

import (
	"context"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/repos"
	"github.com/bespoken/bespoken-backend/internal/scenarios"
	"github.com/bespoken/bespoken-backend/internal/types"
)

// ContextWindowService assembles the recent history shown to the feedback
// generator: the last few scripted partner lines and the learner's last few
// transcripts for the same scenario. Context is an enrichment, never a
// gate, so every failure path degrades to an empty window.
type ContextWindowService interface {
	Build(ctx context.Context, userID, scenarioID string, turnIndex int) types.ContextWindow
}

type contextWindowService struct {
	log      *logger.Logger
	store    scenarios.Store
	turnRepo repos.TurnRepo
	size     int
	maxLen   int
}

func NewContextWindowService(log *logger.Logger, store scenarios.Store, turnRepo repos.TurnRepo, cfg *config.Config) ContextWindowService {
	return &contextWindowService{
		log:      log.With("service", "ContextWindowService"),
		store:    store,
		turnRepo: turnRepo,
		size:     cfg.ContextWindowSize,
		maxLen:   cfg.ContextLineMaxLen,
	}
}

func (cw *contextWindowService) Build(ctx context.Context, userID, scenarioID string, turnIndex int) types.ContextWindow {
	window := types.ContextWindow{}
	if cw.size <= 0 {
		return window
	}

	window.PrevPartner = cw.partnerLines(scenarioID, turnIndex)
	window.PrevUser = cw.learnerLines(ctx, userID, scenarioID, turnIndex)
	return window
}

// partnerLines returns the scripted partner lines for the size turns
// preceding turnIndex, in chronological order.
func (cw *contextWindowService) partnerLines(scenarioID string, turnIndex int) []string {
	sc, ok := cw.store.GetScenario(scenarioID)
	if !ok {
		cw.log.Warn("Scenario not found while building context window", "scenario_id", scenarioID)
		return nil
	}

	var lines []string
	for _, turn := range sc.Turns {
		if turn.TurnIndex >= turnIndex {
			break
		}
		lines = append(lines, truncateLine(turn.Transcript, cw.maxLen))
	}
	if len(lines) > cw.size {
		lines = lines[len(lines)-cw.size:]
	}
	return lines
}

// learnerLines returns the learner's own prior transcripts, oldest first.
// The repo hands them back newest first so they are reversed here.
func (cw *contextWindowService) learnerLines(ctx context.Context, userID, scenarioID string, turnIndex int) []string {
	prior, err := cw.turnRepo.GetPriorTurns(ctx, nil, userID, scenarioID, turnIndex, cw.size)
	if err != nil {
		cw.log.Warn("Failed to load prior turns for context window",
			"user_id", userID,
			"scenario_id", scenarioID,
			"error", err)
		return nil
	}

	lines := make([]string, 0, len(prior))
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Transcript == "" {
			continue
		}
		lines = append(lines, truncateLine(prior[i].Transcript, cw.maxLen))
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

func truncateLine(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
