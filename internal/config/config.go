package config

import (
	"strings"
	"time"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/utils"
)

// Config is built once at startup and passed into every constructor.
// Components never read the environment themselves.
type Config struct {
	Port        string
	CORSOrigins []string

	GCSBucketName string
	CDNDomain     string

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAITimeout        time.Duration
	OpenAIMaxRetries     int
	FeedbackTemperature  float64
	FeedbackMaxTokens    int
	FeedbackSystemPrompt string

	MaxAudioSeconds float64
	// AllowedExtensions gates intake only. The recognizer has no
	// encoding for m4a, so deployments that keep it in the list need
	// to transcode those clips before upload.
	AllowedExtensions  []string
	MaxContentLengthMB float64

	ContextWindowSize int
	ContextLineMaxLen int

	PersistQueueSize int

	JWTSecretKey string
}

func Load(log *logger.Logger) *Config {
	cfg := &Config{
		Port:        utils.GetEnv("PORT", "8080", log),
		CORSOrigins: splitAndTrim(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5174", log)),

		GCSBucketName: utils.GetEnv("GCS_BUCKET_NAME", "", log),
		CDNDomain:     utils.GetEnv("CDN_DOMAIN", "", log),

		OpenAIAPIKey:         utils.GetEnv("OPENAI_API_KEY", "", log),
		OpenAIBaseURL:        utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log),
		OpenAIModel:          utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		OpenAITimeout:        time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 60, log)) * time.Second,
		OpenAIMaxRetries:     utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 2, log),
		FeedbackTemperature:  utils.GetEnvAsFloat("FEEDBACK_TEMPERATURE", 0.3, log),
		FeedbackMaxTokens:    utils.GetEnvAsInt("FEEDBACK_MAX_TOKENS", 400, log),
		FeedbackSystemPrompt: utils.GetEnv("FEEDBACK_SYSTEM_PROMPT", "", log),

		MaxAudioSeconds:    utils.GetEnvAsFloat("MAX_AUDIO_SECONDS", 70, log),
		AllowedExtensions:  splitAndTrim(utils.GetEnv("ALLOWED_EXTENSIONS", "wav,mp3,m4a,webm,ogg", log)),
		MaxContentLengthMB: utils.GetEnvAsFloat("MAX_CONTENT_LENGTH_MB", 20, log),

		ContextWindowSize: utils.GetEnvAsInt("CONTEXT_WINDOW_SIZE", 2, log),
		ContextLineMaxLen: utils.GetEnvAsInt("CONTEXT_LINE_MAX_LEN", 180, log),

		PersistQueueSize: utils.GetEnvAsInt("PERSIST_QUEUE_SIZE", 64, log),

		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "", log),
	}
	return cfg
}

func (c Config) MaxContentLengthBytes() int64 {
	return int64(c.MaxContentLengthMB * 1024 * 1024)
}

func (c Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range c.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
