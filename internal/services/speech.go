package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/utils"
)

// TranscriptionService wraps the speech-to-text backend. A single logical
// attempt per call: transient transport hiccups are absorbed by a short
// internal retry, everything else surfaces as a TranscriptionError.
type TranscriptionService interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Close() error
}

type transcriptionService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewTranscriptionService(log *logger.Logger) (TranscriptionService, error) {
	serviceLog := log.With("service", "TranscriptionService")

	creds := strings.TrimSpace(utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", log))
	if creds == "" {
		creds = strings.TrimSpace(utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS", "", log))
	}

	ctx := context.Background()
	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &transcriptionService{
		log:        serviceLog,
		client:     c,
		maxRetries: 2,
	}, nil
}

func (s *transcriptionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *transcriptionService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	// learner clips are short; keep a strict ceiling
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return "", &TranscriptionError{Err: fmt.Errorf("empty audio payload")}
	}

	encoding, native := inferSpeechEncoding(filename)
	if !native {
		s.log.Warn("No native recognizer encoding for audio container, recognition may fail", "filename", filename)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               "en-US",
			EnableAutomaticPunctuation: true,
			Encoding:                   encoding,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := s.retryRecognize(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return "", &TranscriptionError{Err: fmt.Errorf("longrunningrecognize: %w", err)}
	}

	text := joinTranscripts(resp)
	if text == "" {
		return "", &TranscriptionError{Err: fmt.Errorf("empty transcription result")}
	}
	return text, nil
}

func (s *transcriptionService) retryRecognize(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("Speech request retrying", "attempt", attempt+1, "error", err.Error())
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, last
}

func joinTranscripts(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := strings.TrimSpace(r.Alternatives[0].Transcript)
		if alt == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(alt)
	}
	return strings.TrimSpace(full.String())
}

// inferSpeechEncoding maps a filename to the recognizer encoding. The
// second return is false when the container has no RecognitionConfig
// encoding in the v1 API (.m4a and other AAC files land here): the
// recognizer only auto-detects self-describing formats, so such clips
// fail recognition unless they are transcoded upstream or the
// deployment narrows ALLOWED_EXTENSIONS.
func inferSpeechEncoding(filename string) (speechpb.RecognitionConfig_AudioEncoding, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16, true
	case ".flac":
		return speechpb.RecognitionConfig_FLAC, true
	case ".mp3":
		return speechpb.RecognitionConfig_MP3, true
	case ".ogg", ".opus", ".webm":
		return speechpb.RecognitionConfig_OGG_OPUS, true
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, false
	}
}
