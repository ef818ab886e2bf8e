package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/middleware"
	"github.com/bespoken/bespoken-backend/internal/services"
)

type UploadHandler struct {
	log      *logger.Logger
	pipeline services.TurnPipeline
}

func NewUploadHandler(log *logger.Logger, pipeline services.TurnPipeline) *UploadHandler {
	return &UploadHandler{
		log:      log.With("handler", "UploadHandler"),
		pipeline: pipeline,
	}
}

// POST /api/upload
// Accepts one recorded learner turn as multipart form data and returns the
// transcript plus structured feedback.
func (h *UploadHandler) UploadAudio(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		RespondError(c, http.StatusBadRequest, errors.New("no audio file provided"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, errors.New("could not read audio file"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, errors.New("could not read audio file"))
		return
	}

	userID := c.PostForm("user_id")
	if id, ok := middleware.IdentityFrom(c); ok {
		// A verified token always wins over the form field.
		userID = id.UserID
	}

	turnIndex, err := strconv.Atoi(c.PostForm("turn_index"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, errors.New("turn_index must be an integer"))
		return
	}

	duration := 0.0
	if raw := c.PostForm("duration_sec"); raw != "" {
		if duration, err = strconv.ParseFloat(raw, 64); err != nil {
			RespondError(c, http.StatusBadRequest, errors.New("duration_sec must be a number"))
			return
		}
	}

	result, err := h.pipeline.ProcessTurn(c.Request.Context(), services.TurnRequest{
		UserID:          userID,
		ScenarioID:      c.PostForm("scenario_id"),
		TurnIndex:       turnIndex,
		Filename:        fileHeader.Filename,
		Audio:           audio,
		DurationSeconds: duration,
	})
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}

	RespondOK(c, result)
}

// respondPipelineError maps the pipeline's error taxonomy onto HTTP
// statuses: caller mistakes are 400, upstream dependency failures are 502.
func (h *UploadHandler) respondPipelineError(c *gin.Context, err error) {
	var (
		validationErr    *services.ValidationError
		uploadErr        *services.UploadError
		transcriptionErr *services.TranscriptionError
		generationErr    *services.FeedbackGenerationError
	)
	switch {
	case errors.As(err, &validationErr):
		RespondError(c, http.StatusBadRequest, err)
	case errors.As(err, &uploadErr):
		h.log.Error("Blob upload failed", "error", err)
		RespondError(c, http.StatusBadGateway, errors.New("audio storage is unavailable"))
	case errors.As(err, &transcriptionErr):
		h.log.Error("Transcription failed", "error", err)
		RespondError(c, http.StatusBadGateway, errors.New("speech recognition failed"))
	case errors.As(err, &generationErr):
		h.log.Error("Feedback generation failed", "error", err)
		RespondError(c, http.StatusBadGateway, errors.New("feedback generation failed"))
	default:
		h.log.Error("Unexpected pipeline error", "error", err)
		RespondError(c, http.StatusInternalServerError, errors.New("internal error"))
	}
}
