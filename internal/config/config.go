package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Realtime audio defaults
	DefaultRealtimeURL        = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel      = "gpt-4o-realtime-preview-2024-10-01"
	DefaultVoice              = "alloy"
	DefaultTemperature        = 0.8
	DefaultAudioFormat        = "g711_ulaw"
	DefaultSessionUpdateDelay = 250 * time.Millisecond

	// Assistant defaults
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultQualityModel  = "gpt-4o"
	DefaultTurnTimeout   = 90 * time.Second

	// Connection Constants
	DefaultConnectionTimeout = 30 * time.Second

	// Session store
	SessionStoreSync   = "sync"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
	DefaultSessionTTL  = 24 * time.Hour

	DefaultSystemMessage = "You are a helpful and bubbly AI assistant who loves to chat about anything the user is interested in and is prepared to offer them facts. Always stay positive."
)

// Config holds the service configuration
type Config struct {
	Port           string
	LogEnv         string
	PublicBaseURL  string
	MaxConnections int

	// OpenAI configuration
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	RealtimeURL          string
	RealtimeModel        string
	AssistantID          string
	QualityModel         string
	Voice                string
	SystemMessage        string
	Temperature          float64
	SessionUpdateDelay   time.Duration
	TurnTimeout          time.Duration
	UnsupportedToolReply bool

	// Twilio configuration
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioSyncServiceSID    string
	TwilioValidateSignature bool
	StudioFlowURL           string

	// Session store
	SessionStore string
	SessionTTL   time.Duration
	Redis        RedisConfig

	// Analytics
	SegmentWriteKey string

	PromptsDir string
}

// RedisConfig holds redis connection settings for the session store
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Load reads configuration from environment variables.
// The .env file is loaded in main.go for local development using godotenv.Load()
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "5050"),
		LogEnv:         getEnv("LOG_ENV", "development"),
		PublicBaseURL:  strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", ""), "/"),
		MaxConnections: getEnvAsInt("MAX_CONNECTIONS", 100),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		RealtimeURL:          getEnv("OPENAI_REALTIME_URL", DefaultRealtimeURL),
		RealtimeModel:        getEnv("OPENAI_REALTIME_MODEL", DefaultRealtimeModel),
		AssistantID:          getEnv("OPENAI_ASSISTANT_ID", ""),
		QualityModel:         getEnv("OPENAI_QUALITY_MODEL", DefaultQualityModel),
		Voice:                getEnv("VOICE", DefaultVoice),
		SystemMessage:        getEnv("SYSTEM_MESSAGE", DefaultSystemMessage),
		Temperature:          getEnvAsFloat("TEMPERATURE", DefaultTemperature),
		SessionUpdateDelay:   getEnvAsDuration("SESSION_UPDATE_DELAY", DefaultSessionUpdateDelay),
		TurnTimeout:          getEnvAsDuration("TURN_TIMEOUT", DefaultTurnTimeout),
		UnsupportedToolReply: getEnvAsBool("UNSUPPORTED_TOOL_REPLY", false),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioSyncServiceSID:    getEnv("TWILIO_SYNC_SERVICE_SID", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", false),
		StudioFlowURL:           getEnv("STUDIO_FLOW_URL", ""),

		SessionStore: strings.ToLower(getEnv("SESSION_STORE", SessionStoreSync)),
		SessionTTL:   getEnvAsDuration("SESSION_TTL", DefaultSessionTTL),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SegmentWriteKey: getEnv("SEGMENT_WRITE_KEY", ""),
		PromptsDir:      getEnv("PROMPTS_DIR", "assets"),
	}
}

// Validate reports every missing or inconsistent setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	switch c.SessionStore {
	case SessionStoreSync:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioSyncServiceSID == "" {
			errs = append(errs, errors.New("sync session store requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_SYNC_SERVICE_SID"))
		}
	case SessionStoreRedis, SessionStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	if c.TwilioValidateSignature && c.TwilioAuthToken == "" {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN"))
	}
	if c.SessionUpdateDelay < 0 || c.TurnTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_UPDATE_DELAY must be >= 0 and TURN_TIMEOUT > 0"))
	}
	return errors.Join(errs...)
}

// RealtimeEndpoint returns the realtime websocket URL with the model query
func (c *Config) RealtimeEndpoint() string {
	sep := "?"
	if strings.Contains(c.RealtimeURL, "?") {
		sep = "&"
	}
	return c.RealtimeURL + sep + "model=" + c.RealtimeModel
}
