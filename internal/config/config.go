package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Env           string `yaml:"env" env:"ENV" env-default:"local"`
	Storage       `yaml:"storage"`
	Postgres      `yaml:"postgres"`
	Tokens        `yaml:"tokens"`
	Model         `yaml:"model"`
	Transcription `yaml:"transcription"`
	Uploads       `yaml:"uploads"`
	RabbitMQ      `yaml:"rabbitmq"`
	RateLimits    `yaml:"rate_limits"`
	HTTPServer    `yaml:"http_server"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

type Postgres struct {
	Host        string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port        int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User        string `yaml:"user" env:"POSTGRES_USER"`
	Password    string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName      string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode     string `yaml:"sslmode" env-default:"disable"`
	MaxConns    int32  `yaml:"max_conns" env-default:"10"`
	MinConns    int32  `yaml:"min_conns" env-default:"2"`
	AutoMigrate bool   `yaml:"auto_migrate" env-default:"true"`
}

type Tokens struct {
	TTL    time.Duration `yaml:"ttl" env-default:"3h"`
	Secret string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
}

type Model struct {
	Provider     string        `yaml:"provider" env:"MODEL_PROVIDER" env-default:"openai"`
	BaseURL      string        `yaml:"base_url" env:"MODEL_BASE_URL" env-default:"http://localhost:11434/v1"`
	APIKey       string        `yaml:"api_key" env:"MODEL_API_KEY" env-default:"ollama"`
	Name         string        `yaml:"name" env:"MODEL_NAME" env-default:"llama3.1"`
	SystemPrompt string        `yaml:"system_prompt" env-default:"You are my helpful assistant"`
	MaxTokens    int64         `yaml:"max_tokens" env-default:"1024"`
	SaveTimeout  time.Duration `yaml:"save_timeout" env-default:"5s"`
	// DataDir holds the documents every reply is grounded on. Empty disables it.
	DataDir         string `yaml:"data_dir" env:"MODEL_DATA_DIR"`
	ContextMaxBytes int    `yaml:"context_max_bytes" env-default:"65536"`
	MemoryTokens    int    `yaml:"memory_tokens" env-default:"1500"`
	TokenEncoding   string `yaml:"token_encoding" env-default:"cl100k_base"`
}

type Transcription struct {
	BaseURL string `yaml:"base_url" env:"TRANSCRIPTION_BASE_URL"`
	APIKey  string `yaml:"api_key" env:"TRANSCRIPTION_API_KEY"`
	Model   string `yaml:"model" env-default:"whisper-1"`
}

type Uploads struct {
	Dir     string        `yaml:"dir" env:"UPLOADS_DIR" env-default:"./uploads"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"1h"`
	MaxSize int64         `yaml:"max_size" env-default:"26214400"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env-default:"account_events"`
}

type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type RateLimits struct {
	GetAuth    RateLimit `yaml:"get_auth" env-prefix:"GET_AUTH_"`
	Register   RateLimit `yaml:"register" env-prefix:"REGISTER_"`
	DeleteUser RateLimit `yaml:"delete_user" env-prefix:"DELETE_USER_"`
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Postgres.User == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("postgres user and dbname are required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	return nil
}

// Worker is the subset of the service config read by the event worker.
// It shares the file with the API so both agree on the queue and upload dir.
type Worker struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local"`
	Uploads  `yaml:"uploads"`
	RabbitMQ `yaml:"rabbitmq"`
}

func MustLoadWorker(configPath string) *Worker {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Worker

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	if cfg.RabbitMQ.URL == "" {
		panic("rabbitmq url is required")
	}

	return &cfg
}
