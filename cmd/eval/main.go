// Offline evaluation harness for the feedback generator. Reads a CSV of
// graded turns, optionally regenerates feedback for each row, scores the
// tip and rewrite against the expert columns with an A-E rubric judged by
// the model, and scores the grade by exact match.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/services"
	"github.com/bespoken/bespoken-backend/internal/types"
)

const judgeSystemPrompt = `You are an evaluation assistant that grades how well a model's feedback matches an expert (ideal) response.
Always evaluate in the context of the full conversation between the partner and the learner.

Rules:
1. If the model feedback addresses a different linguistic issue (e.g., tone vs. vocabulary vs. grammar), treat that as a disagreement (D).
2. If the model feedback misses or ignores the expert's main point, treat it as a disagreement (D).
3. If either the expert or model feedback is missing, mark it as D (unless both are blank, then E).
Output only a single letter from A-E and nothing else.`

const judgeUserTemplate = `You are comparing a model-generated feedback message to an expert version.
Evaluate whether the model's message provides correct, relevant, and consistent feedback
based on the dialogue context between the partner and the learner.

[BEGIN DATA]
************
[Conversation Context]
%s
************
[Expert Feedback]
%s
************
[Model Feedback]
%s
************
[END DATA]

Compare the factual and semantic content of the model feedback with the expert version.
Ignore minor stylistic differences (tone, punctuation, formatting).

Choose ONE option:

(A) The model feedback identifies the same issue or correction as the expert, but it is less complete.
(B) The model feedback adds extra relevant detail while staying fully consistent with the expert.
(C) The model feedback covers the same ideas and explanations as the expert.
(D) The model feedback gives different, incorrect, or irrelevant advice.
(E) The model feedback only differs stylistically but conveys the same meaning.

Output a single capital letter (A-E).`

var letterScores = map[string]float64{
	"A": 0.8,
	"B": 0.8,
	"C": 1.0,
	"D": 0.0,
	"E": 1.0,
}

type evalRow struct {
	fields map[string]string
}

func (r evalRow) get(key string) string {
	return strings.TrimSpace(r.fields[key])
}

type judge struct {
	log *logger.Logger
	ai  services.OpenAIClient
}

// gradeVsIdeal runs the A-E rubric. Missing-side cases are decided
// deterministically without a model call.
func (j *judge) gradeVsIdeal(ctx context.Context, conversation, expert, submission string) string {
	expert = strings.TrimSpace(expert)
	submission = strings.TrimSpace(submission)
	switch {
	case expert == "" && submission == "":
		return "E"
	case expert == "" || submission == "":
		return "D"
	}

	prompt := fmt.Sprintf(judgeUserTemplate, conversation, expert, submission)
	raw, err := j.ai.GenerateText(ctx, judgeSystemPrompt, prompt, 0, 5)
	if err != nil {
		j.log.Warn("Judge call failed", "error", err)
		return "?"
	}
	return extractLabel(raw)
}

func extractLabel(raw string) string {
	for _, ch := range strings.ToUpper(raw) {
		if ch >= 'A' && ch <= 'E' {
			return string(ch)
		}
	}
	return "?"
}

func main() {
	var (
		inputPath  = flag.String("input", "bespoken_eval.csv", "input CSV of graded turns")
		outputPath = flag.String("output", "", "output CSV path (default: <input>_results_<timestamp>.csv)")
		regen      = flag.Bool("regen", false, "regenerate feedback for each row before scoring")
	)
	flag.Parse()

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load(log)
	openaiClient, err := services.NewOpenAIClient(log, cfg)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}

	rows, header, err := readRows(*inputPath)
	if err != nil {
		log.Error("Could not read input", "path", *inputPath, "error", err)
		os.Exit(1)
	}
	log.Info("Loaded evaluation rows", "count", len(rows))

	ctx := context.Background()

	if *regen {
		feedbackService := services.NewFeedbackService(log, openaiClient, cfg)
		regenerate(ctx, log, feedbackService, rows)
	}

	j := &judge{log: log.With("component", "judge"), ai: openaiClient}

	var tipSum, rewriteSum, gradeSum float64
	tipDist := map[string]int{}
	rewriteDist := map[string]int{}

	for i, row := range rows {
		conversation := fmt.Sprintf("Partner said: %s\nLearner replied: %s",
			row.get("turn_transcript"), row.get("transcript"))

		tipLabel := j.gradeVsIdeal(ctx, conversation, row.get("feedback.tip_ideal"), row.get("feedback.tip"))
		rewriteLabel := j.gradeVsIdeal(ctx, conversation, row.get("feedback.rewrite_ideal"), row.get("feedback.rewrite"))

		gradeScore := 0.0
		modelGrade := strings.ToLower(row.get("feedback.grade"))
		idealGrade := strings.ToLower(row.get("feedback.grade_ideal"))
		if modelGrade != "" && modelGrade == idealGrade {
			gradeScore = 1.0
		}

		row.fields["eval_tip"] = tipLabel
		row.fields["eval_rewrite"] = rewriteLabel
		row.fields["tip_score"] = fmt.Sprintf("%.1f", letterScores[tipLabel])
		row.fields["rewrite_score"] = fmt.Sprintf("%.1f", letterScores[rewriteLabel])
		row.fields["grade_score"] = fmt.Sprintf("%.1f", gradeScore)

		tipSum += letterScores[tipLabel]
		rewriteSum += letterScores[rewriteLabel]
		gradeSum += gradeScore
		tipDist[tipLabel]++
		rewriteDist[rewriteLabel]++

		log.Info("Scored row", "row", i+1, "eval_tip", tipLabel, "eval_rewrite", rewriteLabel, "grade_score", gradeScore)
	}

	n := float64(len(rows))
	if n > 0 {
		fmt.Printf("Grade match accuracy: %.2f%%\n", 100*gradeSum/n)
		fmt.Printf("Average tip score:    %.2f\n", tipSum/n)
		fmt.Printf("Average rewrite score: %.2f\n", rewriteSum/n)
		fmt.Printf("Tip label distribution: %v\n", tipDist)
		fmt.Printf("Rewrite label distribution: %v\n", rewriteDist)
	}

	out := *outputPath
	if out == "" {
		base := strings.TrimSuffix(*inputPath, ".csv")
		out = fmt.Sprintf("%s_results_%s.csv", base, time.Now().Format("20060102_1504"))
	}
	header = appendMissing(header, "eval_tip", "eval_rewrite", "tip_score", "rewrite_score", "grade_score")
	if *regen {
		header = appendMissing(header, "feedback.tip", "feedback.rewrite", "feedback.grade")
	}
	if err := writeRows(out, header, rows); err != nil {
		log.Error("Could not write results", "path", out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Results saved to %s\n", out)
}

func regenerate(ctx context.Context, log *logger.Logger, feedbackService services.FeedbackService, rows []evalRow) {
	log.Info("Regenerating feedback for all rows...")
	for i, row := range rows {
		record, err := feedbackService.Generate(ctx, services.FeedbackInput{
			Transcript:          row.get("transcript"),
			ScenarioTitle:       row.get("scenario_title"),
			ScenarioDescription: row.get("scenario_description"),
			PartnerText:         row.get("turn_transcript"),
			Context:             types.ContextWindow{},
		})
		if err != nil {
			log.Warn("Regeneration failed", "row", i+1, "error", err)
			continue
		}
		row.fields["feedback.tip"] = record.Tip
		row.fields["feedback.rewrite"] = record.Rewrite
		row.fields["feedback.grade"] = record.Grade
	}
}

func readRows(path string) ([]evalRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty CSV")
	}

	header := records[0]
	if len(header) > 0 {
		// Strip a UTF-8 BOM if the file came out of a spreadsheet.
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	rows := make([]evalRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				fields[col] = rec[i]
			}
		}
		rows = append(rows, evalRow{fields: fields})
	}
	return rows, header, nil
}

func writeRows(path string, header []string, rows []evalRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = row.fields[col]
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func appendMissing(header []string, cols ...string) []string {
	for _, col := range cols {
		found := false
		for _, existing := range header {
			if existing == col {
				found = true
				break
			}
		}
		if !found {
			header = append(header, col)
		}
	}
	return header
}
