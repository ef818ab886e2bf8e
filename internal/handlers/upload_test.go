package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/services"
)

type fakePipeline struct {
	result  *services.TurnResult
	err     error
	lastReq services.TurnRequest
	calls   int
}

func (f *fakePipeline) ProcessTurn(ctx context.Context, req services.TurnRequest) (*services.TurnResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePipeline) StartPersistWorker(ctx context.Context) {}

func newUploadRouter(t *testing.T, pipeline services.TurnPipeline) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	router := gin.New()
	router.POST("/api/upload", NewUploadHandler(log, pipeline).UploadAudio)
	return router
}

type uploadForm struct {
	skipAudio  bool
	userID     string
	scenarioID string
	turnIndex  string
	duration   string
}

func buildUploadRequest(t *testing.T, form uploadForm) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if !form.skipAudio {
		part, err := w.CreateFormFile("audio", "clip.wav")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("RIFFdata")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	fields := map[string]string{
		"user_id":      form.userID,
		"scenario_id":  form.scenarioID,
		"turn_index":   form.turnIndex,
		"duration_sec": form.duration,
	}
	for k, v := range fields {
		if v != "" {
			if err := w.WriteField(k, v); err != nil {
				t.Fatalf("WriteField %s: %v", k, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func validForm() uploadForm {
	return uploadForm{
		userID:     "user-1",
		scenarioID: "happy_hour",
		turnIndex:  "1",
		duration:   "4.2",
	}
}

func TestUploadAudioOK(t *testing.T) {
	pipeline := &fakePipeline{result: &services.TurnResult{
		TurnID:     services.PendingTurnID,
		AudioURL:   "https://cdn.example.com/uploads/u/s/x.wav",
		Transcript: "hello there",
	}}
	router := newUploadRouter(t, pipeline)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildUploadRequest(t, validForm()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result services.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Transcript != "hello there" {
		t.Errorf("transcript: got %q", result.Transcript)
	}
	if pipeline.lastReq.UserID != "user-1" || pipeline.lastReq.ScenarioID != "happy_hour" {
		t.Errorf("request not forwarded: %+v", pipeline.lastReq)
	}
	if pipeline.lastReq.TurnIndex != 1 || pipeline.lastReq.DurationSeconds != 4.2 {
		t.Errorf("numeric fields not parsed: %+v", pipeline.lastReq)
	}
	if pipeline.lastReq.Filename != "clip.wav" {
		t.Errorf("filename: got %q", pipeline.lastReq.Filename)
	}
}

func TestUploadAudioMissingFile(t *testing.T) {
	pipeline := &fakePipeline{}
	router := newUploadRouter(t, pipeline)

	form := validForm()
	form.skipAudio = true
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildUploadRequest(t, form))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	if pipeline.calls != 0 {
		t.Errorf("pipeline should not run without a file")
	}
}

func TestUploadAudioBadFormFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*uploadForm)
	}{
		{"non-numeric turn_index", func(f *uploadForm) { f.turnIndex = "one" }},
		{"missing turn_index", func(f *uploadForm) { f.turnIndex = "" }},
		{"non-numeric duration", func(f *uploadForm) { f.duration = "fast" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipeline := &fakePipeline{}
			router := newUploadRouter(t, pipeline)

			form := validForm()
			tc.mutate(&form)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, buildUploadRequest(t, form))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d", rec.Code)
			}
			if pipeline.calls != 0 {
				t.Errorf("pipeline should not run on a malformed form")
			}
		})
	}
}

func TestUploadAudioErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			"validation",
			services.NewValidationError("audio too long"),
			http.StatusBadRequest,
		},
		{
			"upload failure",
			&services.UploadError{Err: errors.New("bucket unreachable")},
			http.StatusBadGateway,
		},
		{
			"transcription failure",
			&services.TranscriptionError{Err: errors.New("empty transcription result")},
			http.StatusBadGateway,
		},
		{
			"generation failure",
			&services.FeedbackGenerationError{Err: errors.New("model refused")},
			http.StatusBadGateway,
		},
		{
			"unexpected",
			errors.New("boom"),
			http.StatusInternalServerError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipeline := &fakePipeline{err: tc.err}
			router := newUploadRouter(t, pipeline)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, buildUploadRequest(t, validForm()))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == "" {
				t.Errorf("error message should not be empty")
			}
		})
	}
}
