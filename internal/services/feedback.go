package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/types"
)

// Canned texts applied by the deterministic override rules. Generation-time
// judgment of topicality is unreliable on its own, so these guardrails stop
// the model from praising an answer that ignored the partner.
const (
	offTopicTip = "It looks like your reply didn't address what your partner said. Try answering their question first, then add your own thoughts."

	lowRelevanceTip = "Good effort! Part of your partner's question went unanswered — make sure your reply responds to what they just said."

	defaultTip     = "Keep practicing!"
	defaultRewrite = "none"
	defaultSafety  = "ok"
)

// Raw rubric the generator is driven by. Exact response keys, behavior
// rules, color/grade rules, and few-shot examples.
const defaultSystemPrompt = "You are a warm, supportive American English coach helping ESL learners speak naturally and confidently in everyday U.S. contexts. " +
	"In addition to giving coaching feedback, you will also classify their overall fluency level. " +
	"Your job is to correct only when something truly sounds unnatural, confusing, or grammatically wrong — otherwise, praise them. " +
	"Your feedback should teach, not just correct. Help the learner understand *why* native speakers say it differently. " +

	"Return JSON with these exact keys: " +
	"rewrite (a concise native-sounding alternative if the learner's wording is clearly unidiomatic, too formal/awkward, grammatically incorrect, or off-topic; otherwise 'none'), " +
	"tip (one short coaching note or compliment ≤40 words explaining the main improvement or reasoning, no IPA), " +
	"context_relevance (float 0.0–1.0, how well the reply addresses the partner's question/goal), " +
	"off_topic (boolean, true if learner ignored partner's question/goal), " +
	"missing_elements (array of strings, e.g., ['answer_question', 'follow_up', 'politeness']), " +
	"safety (string, always 'ok' unless there's a safety concern). " +
	"grade (string: 'green', 'yellow', or 'red' — representing overall fluency), " +
	"highlight_tokens (array of {token,color} using 'green', 'yellow', or 'red', covering all meaningful words or short phrases in the learner's sentence). " +

	"Behavior rules: " +
	"- Praise generously when the sentence is natural or contextually fine (e.g., 'That sounds natural!'). " +
	"- Ignore trivial differences such as punctuation, spacing, or capitalization. " +
	"- Do not suggest rewrites if the only difference is punctuation (e.g., missing commas, question marks, or periods). " +
	"- Treat 'is' vs. ''s' (contraction) as equivalent — both are acceptable, so just praise the user instead of correcting. " +
	"- Avoid emotional or cultural coaching like 'be friendly' or 'sound lighter' — focus purely on linguistic naturalness and contextual appropriateness. " +
	"- Only mark off_topic=true if the learner ignores the main question or task. " +
	"- If the learner makes a grammar or word-choice error, explain briefly *why* the correction is needed, especially when two words look similar but differ in usage. " +
	"- When correcting vocabulary nuance (e.g., 'appearance' vs 'outfit', 'live' vs 'stay'), clarify the difference in meaning and appropriateness in plain English. " +
	"- Keep the tip clear, supportive, and educational — imagine explaining it to a student in one friendly sentence. " +
	"- Never rewrite or comment when the learner already uses perfectly natural, idiomatic English. " +

	"Color and grade rules: " +
	"- 'green' = natural/native-like; only praise and don't suggest rewrites. " +
	"- 'yellow' = understandable but not native-sounding; gentle correction needed. " +
	"- 'red' = confusing or incorrect; clear correction required. " +
	"- Use the same color system for both grade and highlight_tokens to maintain consistency. " +
	"- highlight_tokens should color each token based on its correctness or clarity within the sentence. " +

	"Here are examples of your behavior: " +

	"Example 1:\n" +
	"User said: 'How is your quarter going?'\n" +
	"Response: {\"rewrite\": \"none\", \"tip\": \"That sounds completely natural — great phrasing!\", \"grade\": \"green\", \"highlight_tokens\": [{\"token\": \"How is your quarter going?\", \"color\": \"green\"}]}" +

	"Example 2:\n" +
	"User said: 'I like your appearance.'\n" +
	"Response: {\"rewrite\": \"I like your outfit.\", \"tip\": \"'Appearance' describes someone's overall looks, which can sound personal. 'Outfit' means their clothes — it's the natural word for complimenting style.\", \"grade\": \"yellow\", \"highlight_tokens\": [{\"token\": \"I like your\", \"color\": \"green\"}, {\"token\": \"appearance\", \"color\": \"yellow\"}]}" +

	"Example 3:\n" +
	"User said: 'I go to San Francisco for work trip.'\n" +
	"Response: {\"rewrite\": \"I'm going to San Francisco for a work trip.\", \"tip\": \"Say 'I'm going to' for near-future plans, and add 'a' before 'work trip' — this sounds fluent and natural.\", \"grade\": \"yellow\", \"highlight_tokens\": [{\"token\": \"I go to\", \"color\": \"yellow\"}, {\"token\": \"San Francisco\", \"color\": \"green\"}, {\"token\": \"for work trip\", \"color\": \"yellow\"}]}" +

	"Example 4:\n" +
	"User said: 'To do product manager.'\n" +
	"Response: {\"rewrite\": \"I'm looking to be a product manager.\", \"tip\": \"Use 'I'm looking to be' to express your career goal naturally.\", \"grade\": \"red\", \"highlight_tokens\": [{\"token\": \"To do\", \"color\": \"red\"}, {\"token\": \"product manager\", \"color\": \"green\"}]}"

// FeedbackInput carries everything the generator sees for one turn.
type FeedbackInput struct {
	Transcript          string
	ScenarioTitle       string
	ScenarioDescription string
	PartnerText         string
	Context             types.ContextWindow
}

type FeedbackService interface {
	Generate(ctx context.Context, in FeedbackInput) (*types.FeedbackRecord, error)
}

type feedbackService struct {
	log          *logger.Logger
	ai           OpenAIClient
	systemPrompt string
	temperature  float64
	maxTokens    int
}

func NewFeedbackService(log *logger.Logger, ai OpenAIClient, cfg *config.Config) FeedbackService {
	systemPrompt := cfg.FeedbackSystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &feedbackService{
		log:          log.With("service", "FeedbackService"),
		ai:           ai,
		systemPrompt: systemPrompt,
		temperature:  cfg.FeedbackTemperature,
		maxTokens:    cfg.FeedbackMaxTokens,
	}
}

func (fs *feedbackService) Generate(ctx context.Context, in FeedbackInput) (*types.FeedbackRecord, error) {
	userPrompt := buildUserPrompt(in)

	raw, err := fs.ai.GenerateJSON(ctx, fs.systemPrompt, userPrompt, fs.temperature, fs.maxTokens)
	if err != nil {
		return nil, &FeedbackGenerationError{Err: err}
	}

	var payload feedbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &FeedbackGenerationError{Err: fmt.Errorf("decode feedback payload: %w; raw=%s", err, string(raw))}
	}

	record := payload.normalize()
	applyOverrides(record)
	return record, nil
}

// buildUserPrompt interpolates the scenario, the partner's current line,
// the learner's transcript, and the recent history. The context section is
// dropped entirely when both sides are empty.
func buildUserPrompt(in FeedbackInput) string {
	var b strings.Builder
	title := in.ScenarioTitle
	if title == "" {
		title = "conversation"
	}
	fmt.Fprintf(&b, "Scenario: %s\n", title)
	if in.ScenarioDescription != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.ScenarioDescription)
	}

	if !in.Context.Empty() {
		b.WriteString("\nConversation so far:\n")
		for _, line := range in.Context.PrevPartner {
			fmt.Fprintf(&b, "Partner: %s\n", line)
		}
		for _, line := range in.Context.PrevUser {
			fmt.Fprintf(&b, "Learner: %s\n", line)
		}
	}

	fmt.Fprintf(&b, "\nPartner said: %s\n", in.PartnerText)
	fmt.Fprintf(&b, "Learner replied: %s\n", in.Transcript)
	return b.String()
}

// feedbackPayload is the strict decode target for the generator's JSON.
// Pointer fields distinguish "absent" from zero values so normalization
// can apply documented defaults. context_relevance tolerates a numeric
// string or null since the clamp property must hold regardless of what
// the model emits for that one field.
type feedbackPayload struct {
	Tip              *string                `json:"tip"`
	Rewrite          *string                `json:"rewrite"`
	ContextRelevance flexFloat              `json:"context_relevance"`
	OffTopic         *bool                  `json:"off_topic"`
	MissingElements  []string               `json:"missing_elements"`
	Safety           *string                `json:"safety"`
	Grade            *string                `json:"grade"`
	HighlightTokens  []types.HighlightToken `json:"highlight_tokens"`
}

type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.value = v
		f.set = true
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if v, convErr := strconv.ParseFloat(strings.TrimSpace(str), 64); convErr == nil {
			f.value = v
			f.set = true
		}
	}
	// anything non-numeric stays unset; normalization defaults it
	return nil
}

// normalize fills every required field with its documented default and
// clamps context_relevance into [0, 1].
func (p *feedbackPayload) normalize() *types.FeedbackRecord {
	rec := &types.FeedbackRecord{
		Tip:              defaultTip,
		Rewrite:          defaultRewrite,
		ContextRelevance: 0.5,
		Safety:           defaultSafety,
		Grade:            types.GradeYellow,
		MissingElements:  []string{},
		HighlightTokens:  []types.HighlightToken{},
	}
	if p.Tip != nil && strings.TrimSpace(*p.Tip) != "" {
		rec.Tip = strings.TrimSpace(*p.Tip)
	}
	if p.Rewrite != nil && strings.TrimSpace(*p.Rewrite) != "" {
		rec.Rewrite = strings.TrimSpace(*p.Rewrite)
	}
	if p.ContextRelevance.set {
		rec.ContextRelevance = clamp01(p.ContextRelevance.value)
	}
	if p.OffTopic != nil {
		rec.OffTopic = *p.OffTopic
	}
	if p.MissingElements != nil {
		rec.MissingElements = p.MissingElements
	}
	if p.Safety != nil && strings.TrimSpace(*p.Safety) != "" {
		rec.Safety = strings.TrimSpace(*p.Safety)
	}
	if p.Grade != nil {
		switch strings.ToLower(strings.TrimSpace(*p.Grade)) {
		case types.GradeGreen:
			rec.Grade = types.GradeGreen
		case types.GradeRed:
			rec.Grade = types.GradeRed
		case types.GradeYellow:
			rec.Grade = types.GradeYellow
		}
	}
	if p.HighlightTokens != nil {
		rec.HighlightTokens = p.HighlightTokens
	}
	return rec
}

// applyOverrides enforces the deterministic guardrails on a normalized
// record. Idempotent: the audit tip is captured only on the first
// application and the replacement texts are fixed points.
func applyOverrides(rec *types.FeedbackRecord) {
	switch {
	case rec.OffTopic:
		if rec.OriginalTip == "" && rec.Tip != offTopicTip {
			rec.OriginalTip = rec.Tip
		}
		rec.Tip = offTopicTip
		rec.Rewrite = defaultRewrite
	case rec.ContextRelevance < 0.5:
		if rec.OriginalTip == "" && rec.Tip != lowRelevanceTip {
			rec.OriginalTip = rec.Tip
		}
		rec.Tip = lowRelevanceTip
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
