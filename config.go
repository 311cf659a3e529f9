package potluck

import "time"

type ModelConfig struct {
	Provider           string  `env:"MODEL_PROVIDER,default=mock"`
	ModelID            string  `env:"MODEL_ID"`
	MaxTokens          int32   `env:"MAX_TOKENS,default=2048"`
	Temperature        float32 `env:"TEMPERATURE,default=0.2"`
	TopP               float32 `env:"TOP_P,default=0.9"`
	BaseOllamaEndpoint string  `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
}

type StoreConfig struct {
	Backend          string `env:"STORE_BACKEND,default=memory"`
	TableName        string `env:"SESSIONS_TABLE,default=potluck-sessions"`
	HostIndexName    string `env:"SESSIONS_HOST_INDEX,default=HostIndex"`
	Bucket           string `env:"SESSIONS_S3_BUCKET"`
	Prefix           string `env:"SESSIONS_S3_PREFIX,default=sessions/"`
	MaxWriteAttempts int    `env:"MAX_WRITE_ATTEMPTS,default=5"`
}

type GenerationConfig struct {
	Timeout             time.Duration `env:"GENERATION_TIMEOUT,default=30s"`
	BreakerMinRequests  int           `env:"BREAKER_MIN_REQUESTS,default=5"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO,default=0.8"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT,default=60s"`
	LogPath             string        `env:"GENERATION_LOG_PATH"`
}

type DirectoryConfig struct {
	UsersPath     string `env:"USERS_PATH,default=artifacts/users.json"`
	UsersS3Bucket string `env:"USERS_S3_BUCKET"`
	UsersS3Key    string `env:"USERS_S3_KEY,default=users.json"`
}

type ServerConfig struct {
	Addr            string        `env:"HTTP_ADDR,default=:8080"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	OtelEnabled     bool          `env:"OTEL_ENABLED,default=false"`
}

type NotifyConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#potluck"`
}
