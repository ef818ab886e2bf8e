package services

import (
	"context"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/repos"
	"github.com/bespoken/bespoken-backend/internal/scenarios"
	"github.com/bespoken/bespoken-backend/internal/types"
)

// PendingTurnID is returned while the row is still in the persistence
// queue. Persistence is asynchronous and must never delay the response.
const PendingTurnID = "pending"

// TurnRequest is one learner utterance ready for processing. Audio holds
// the full payload; DurationSeconds is reported by the client recorder.
type TurnRequest struct {
	UserID          string
	ScenarioID      string
	TurnIndex       int
	Filename        string
	Audio           []byte
	DurationSeconds float64
}

// PhaseTimings records per-phase wall-clock milliseconds for the turn.
type PhaseTimings struct {
	UploadMS        int64 `json:"t_upload_ms"`
	TranscriptionMS int64 `json:"t_stt_ms"`
	GenerationMS    int64 `json:"t_llm_ms"`
	TotalMS         int64 `json:"latency_ms"`
}

// TurnResult is what the client gets back for a processed turn. The
// timing fields marshal at the top level of the response body.
type TurnResult struct {
	TurnID      string                `json:"turn_id"`
	AudioURL    string                `json:"audio_url"`
	Transcript  string                `json:"transcript"`
	PartnerText string                `json:"partner_text"`
	Feedback    *types.FeedbackRecord `json:"feedback"`
	Context     types.ContextWindow   `json:"context"`
	PhaseTimings
}

// TurnPipeline orchestrates one learner turn end to end: validate, fan out
// {blob upload, transcription, context build}, generate feedback, then
// enqueue the row for background persistence.
type TurnPipeline interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	// StartPersistWorker runs the persistence loop until ctx is
	// cancelled, then drains whatever is still queued.
	StartPersistWorker(ctx context.Context)
}

type turnPipeline struct {
	log         *logger.Logger
	cfg         *config.Config
	store       scenarios.Store
	bucket      BucketService
	transcriber TranscriptionService
	feedback    FeedbackService
	contextWin  ContextWindowService
	turnRepo    repos.TurnRepo
	persistCh   chan *types.Turn
}

func NewTurnPipeline(
	log *logger.Logger,
	cfg *config.Config,
	store scenarios.Store,
	bucket BucketService,
	transcriber TranscriptionService,
	feedback FeedbackService,
	contextWin ContextWindowService,
	turnRepo repos.TurnRepo,
) TurnPipeline {
	queueSize := cfg.PersistQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &turnPipeline{
		log:         log.With("service", "TurnPipeline"),
		cfg:         cfg,
		store:       store,
		bucket:      bucket,
		transcriber: transcriber,
		feedback:    feedback,
		contextWin:  contextWin,
		turnRepo:    turnRepo,
		persistCh:   make(chan *types.Turn, queueSize),
	}
}

func (tp *turnPipeline) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()

	turnCtx, err := tp.validate(req)
	if err != nil {
		return nil, err
	}

	ext := fileExtension(req.Filename)
	objectKey := tp.bucket.ObjectKey(req.UserID, req.ScenarioID, ext)

	var (
		audioURL   string
		transcript string
		window     types.ContextWindow
		timings    PhaseTimings
	)

	// Upload, transcription, and context assembly are independent, so
	// they run concurrently. A failed upload or transcription cancels
	// the group; context assembly never fails.
	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		phase := time.Now()
		url, uploadErr := tp.bucket.Upload(groupCtx, req.Audio, objectKey, contentTypeFor(ext))
		timings.UploadMS = time.Since(phase).Milliseconds()
		if uploadErr != nil {
			return uploadErr
		}
		audioURL = url
		return nil
	})

	g.Go(func() error {
		phase := time.Now()
		text, sttErr := tp.transcriber.Transcribe(groupCtx, req.Audio, req.Filename)
		timings.TranscriptionMS = time.Since(phase).Milliseconds()
		if sttErr != nil {
			return sttErr
		}
		transcript = text
		return nil
	})

	g.Go(func() error {
		window = tp.contextWin.Build(groupCtx, req.UserID, req.ScenarioID, req.TurnIndex)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	phase := time.Now()
	record, err := tp.feedback.Generate(ctx, FeedbackInput{
		Transcript:          transcript,
		ScenarioTitle:       turnCtx.ScenarioTitle,
		ScenarioDescription: turnCtx.ScenarioDescription,
		PartnerText:         turnCtx.TurnTranscript,
		Context:             window,
	})
	timings.GenerationMS = time.Since(phase).Milliseconds()
	if err != nil {
		return nil, err
	}

	timings.TotalMS = time.Since(start).Milliseconds()

	tp.enqueuePersist(req, turnCtx.TurnTranscript, audioURL, transcript, record, window)

	return &TurnResult{
		TurnID:       PendingTurnID,
		AudioURL:     audioURL,
		Transcript:   transcript,
		PartnerText:  turnCtx.TurnTranscript,
		Feedback:     record,
		Context:      window,
		PhaseTimings: timings,
	}, nil
}

// validate rejects bad input before any remote call is made. Returns the
// scripted turn context on success so the caller does not look it up twice.
func (tp *turnPipeline) validate(req TurnRequest) (*scenarios.TurnContext, error) {
	if len(req.Audio) == 0 {
		return nil, NewValidationError("empty audio payload")
	}
	if req.UserID == "" {
		return nil, NewValidationError("user_id is required")
	}
	if req.ScenarioID == "" {
		return nil, NewValidationError("scenario_id is required")
	}
	if req.TurnIndex < 0 {
		return nil, NewValidationError("turn_index must be non-negative")
	}

	ext := fileExtension(req.Filename)
	if !tp.cfg.ExtensionAllowed(ext) {
		return nil, NewValidationError("unsupported audio format %q", ext)
	}

	if req.DurationSeconds > tp.cfg.MaxAudioSeconds {
		return nil, NewValidationError("audio too long: %.1fs exceeds the %.0fs limit",
			req.DurationSeconds, tp.cfg.MaxAudioSeconds)
	}
	if int64(len(req.Audio)) > tp.cfg.MaxContentLengthBytes() {
		return nil, NewValidationError("audio payload exceeds %.0f MB", tp.cfg.MaxContentLengthMB)
	}

	turnCtx, ok := tp.store.GetTurnContext(req.ScenarioID, req.TurnIndex)
	if !ok {
		return nil, NewValidationError("unknown scenario %q or turn %d", req.ScenarioID, req.TurnIndex)
	}
	return turnCtx, nil
}

// enqueuePersist hands the finished turn to the background worker. When
// the queue is full the row is dropped with a warning rather than blocking
// the response path.
func (tp *turnPipeline) enqueuePersist(req TurnRequest, partnerText, audioURL, transcript string, record *types.FeedbackRecord, window types.ContextWindow) {
	feedbackJSON, err := json.Marshal(record)
	if err != nil {
		tp.log.Error("Failed to encode feedback for persistence", "error", err)
		return
	}
	windowJSON, err := json.Marshal(window)
	if err != nil {
		tp.log.Error("Failed to encode context window for persistence", "error", err)
		return
	}

	turn := &types.Turn{
		UserID:        req.UserID,
		ScenarioID:    req.ScenarioID,
		TurnIndex:     req.TurnIndex,
		PartnerText:   partnerText,
		AudioURL:      audioURL,
		Transcript:    transcript,
		Feedback:      feedbackJSON,
		ContextWindow: windowJSON,
	}

	select {
	case tp.persistCh <- turn:
	default:
		tp.log.Warn("Persistence queue full, dropping turn",
			"user_id", req.UserID,
			"scenario_id", req.ScenarioID,
			"turn_index", req.TurnIndex)
	}
}

func (tp *turnPipeline) StartPersistWorker(ctx context.Context) {
	tp.log.Info("Persistence worker started", "queue_size", cap(tp.persistCh))
	for {
		select {
		case turn := <-tp.persistCh:
			tp.persistTurn(turn)
		case <-ctx.Done():
			tp.drain()
			return
		}
	}
}

func (tp *turnPipeline) persistTurn(turn *types.Turn) {
	// Detached from any request context: the response has already been
	// sent by the time this runs.
	persistCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := tp.turnRepo.Create(persistCtx, nil, turn); err != nil {
		perr := &PersistenceError{Err: err}
		tp.log.Error("Failed to persist turn",
			"user_id", turn.UserID,
			"scenario_id", turn.ScenarioID,
			"turn_index", turn.TurnIndex,
			"error", perr)
	}
}

func (tp *turnPipeline) drain() {
	for {
		select {
		case turn := <-tp.persistCh:
			tp.persistTurn(turn)
		default:
			tp.log.Info("Persistence worker stopped")
			return
		}
	}
}

func fileExtension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return strings.ToLower(ext)
}

func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	switch ext {
	case "m4a":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
