package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Store      StoreConfig
	Queue      QueueConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Groq       GroqConfig
	R2         R2Config
	Automation AutomationConfig
	Video      VideoConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig selects where job records live: redis, sqlite or memory
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// QueueConfig selects how background work runs: asynq (Redis) or inline goroutines
type QueueConfig struct {
	Driver      string
	Concurrency int
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

type RateLimitConfig struct {
	GeneratePerHour int
	ExecutePerHour  int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Endpoint        string // overrides the account endpoint, e.g. for MinIO
}

// AutomationConfig selects and tunes the engine that performs plan steps
type AutomationConfig struct {
	Engine      string
	Headless    bool
	StartURL    string
	StepTimeout int // seconds
	StepRetries int
}

type VideoConfig struct {
	Dir        string
	TempDir    string
	FFmpegPath string
	FPS        int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.sqlite_path", "STORE_SQLITE_PATH")
	_ = viper.BindEnv("queue.driver", "QUEUE_DRIVER")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.execute_per_hour", "RATELIMIT_EXECUTE_PER_HOUR")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = viper.BindEnv("automation.engine", "AUTOMATION_ENGINE")
	_ = viper.BindEnv("automation.headless", "AUTOMATION_HEADLESS")
	_ = viper.BindEnv("automation.start_url", "AUTOMATION_START_URL")
	_ = viper.BindEnv("automation.step_timeout", "AUTOMATION_STEP_TIMEOUT")
	_ = viper.BindEnv("automation.step_retries", "AUTOMATION_STEP_RETRIES")
	_ = viper.BindEnv("video.dir", "VIDEO_DIR")
	_ = viper.BindEnv("video.temp_dir", "VIDEO_TEMP_DIR")
	_ = viper.BindEnv("video.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("video.fps", "VIDEO_FPS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.sqlite_path", "jobs.db")
	viper.SetDefault("queue.driver", "asynq")
	viper.SetDefault("queue.concurrency", 2)
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwt_secret", "change-me-in-production")
	viper.SetDefault("ratelimit.generate_per_hour", 30)
	viper.SetDefault("ratelimit.execute_per_hour", 20)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Automation defaults
	viper.SetDefault("automation.engine", "offline")
	viper.SetDefault("automation.headless", true)
	viper.SetDefault("automation.start_url", "about:blank")
	viper.SetDefault("automation.step_timeout", 30)
	viper.SetDefault("automation.step_retries", 3)

	// Video defaults
	viper.SetDefault("video.dir", "videos")
	viper.SetDefault("video.temp_dir", "temp")
	viper.SetDefault("video.ffmpeg_path", "ffmpeg")
	viper.SetDefault("video.fps", 2)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(viper.GetString("store.driver")),
			SQLitePath: viper.GetString("store.sqlite_path"),
		},
		Queue: QueueConfig{
			Driver:      strings.ToLower(viper.GetString("queue.driver")),
			Concurrency: viper.GetInt("queue.concurrency"),
		},
		Auth: AuthConfig{
			Enabled:   viper.GetBool("auth.enabled"),
			JWTSecret: viper.GetString("auth.jwt_secret"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			ExecutePerHour:  viper.GetInt("ratelimit.execute_per_hour"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
			Endpoint:        viper.GetString("r2.endpoint"),
		},
		Automation: AutomationConfig{
			Engine:      strings.ToLower(viper.GetString("automation.engine")),
			Headless:    viper.GetBool("automation.headless"),
			StartURL:    viper.GetString("automation.start_url"),
			StepTimeout: viper.GetInt("automation.step_timeout"),
			StepRetries: viper.GetInt("automation.step_retries"),
		},
		Video: VideoConfig{
			Dir:        viper.GetString("video.dir"),
			TempDir:    viper.GetString("video.temp_dir"),
			FFmpegPath: viper.GetString("video.ffmpeg_path"),
			FPS:        viper.GetInt("video.fps"),
		},
	}

	return cfg, nil
}

// ClientConfig configures videoctl
type ClientConfig struct {
	APIURL   string
	Token    string
	LogLevel string
}

// LoadClient reads videoctl settings from v, which callers bind to flags.
// Environment variables use the VIDEOCTL_ prefix.
func LoadClient(v *viper.Viper) *ClientConfig {
	v.SetEnvPrefix("videoctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api-url", "http://localhost:8000/api")
	v.SetDefault("token", "")
	v.SetDefault("log-level", "warn")

	return &ClientConfig{
		APIURL:   v.GetString("api-url"),
		Token:    v.GetString("token"),
		LogLevel: v.GetString("log-level"),
	}
}
