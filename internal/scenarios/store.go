package scenarios

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bespoken/bespoken-backend/internal/logger"
)

//go:embed scenarios.yaml
var scenariosYAML []byte

// ScriptTurn is the partner side of one scripted exchange.
type ScriptTurn struct {
	TurnIndex  int    `yaml:"turn_index" json:"turn_index"`
	VideoURL   string `yaml:"video_url" json:"video_url"`
	Transcript string `yaml:"transcript" json:"transcript"`
}

// Scenario is a scripted multi-turn conversational exercise. Immutable,
// loaded once at process start.
type Scenario struct {
	ID          string       `yaml:"-" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	Difficulty  string       `yaml:"difficulty" json:"difficulty"`
	ImageURL    string       `yaml:"image_url" json:"image_url"`
	Turns       []ScriptTurn `yaml:"turns" json:"turns"`
}

type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	ImageURL    string `json:"image_url"`
}

// TurnContext is what the feedback pipeline needs to know about one
// scripted turn.
type TurnContext struct {
	ScenarioTitle       string `json:"scenario_title"`
	ScenarioDescription string `json:"scenario_description"`
	TurnTranscript      string `json:"turn_transcript"`
	VideoURL            string `json:"video_url"`
}

// Store is a read-only repository over the scenario script data. It exists
// as an interface so the embedded data set can be swapped for a real data
// store without touching the pipeline.
type Store interface {
	GetScenario(id string) (*Scenario, bool)
	GetTurnContext(scenarioID string, turnIndex int) (*TurnContext, bool)
	ListSummaries() []Summary
}

type store struct {
	log       *logger.Logger
	scenarios map[string]*Scenario
}

func NewStore(log *logger.Logger) (Store, error) {
	storeLog := log.With("service", "ScenarioStore")

	raw := map[string]*Scenario{}
	if err := yaml.Unmarshal(scenariosYAML, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse scenario data: %w", err)
	}
	for id, sc := range raw {
		if sc == nil {
			return nil, fmt.Errorf("scenario %q has no body", id)
		}
		sc.ID = id
		sort.Slice(sc.Turns, func(i, j int) bool {
			return sc.Turns[i].TurnIndex < sc.Turns[j].TurnIndex
		})
	}

	storeLog.Info("Loaded scenario scripts", "count", len(raw))
	return &store{log: storeLog, scenarios: raw}, nil
}

func (s *store) GetScenario(id string) (*Scenario, bool) {
	sc, ok := s.scenarios[id]
	return sc, ok
}

func (s *store) GetTurnContext(scenarioID string, turnIndex int) (*TurnContext, bool) {
	sc, ok := s.scenarios[scenarioID]
	if !ok {
		return nil, false
	}
	for _, turn := range sc.Turns {
		if turn.TurnIndex == turnIndex {
			return &TurnContext{
				ScenarioTitle:       sc.Title,
				ScenarioDescription: sc.Description,
				TurnTranscript:      turn.Transcript,
				VideoURL:            turn.VideoURL,
			}, true
		}
	}
	return nil, false
}

func (s *store) ListSummaries() []Summary {
	out := make([]Summary, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		out = append(out, Summary{
			ID:          sc.ID,
			Title:       sc.Title,
			Description: sc.Description,
			Difficulty:  sc.Difficulty,
			ImageURL:    sc.ImageURL,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
