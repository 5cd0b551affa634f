package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Jobs     JobsConfig
	API      APIConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// AIConfig selects and configures the inference backend.
type AIConfig struct {
	Provider      string // "openai" or "compat"
	APIKey        string
	Model         string
	ResearchModel string // web-search capable model for discovery calls
	BaseURL       string // compat provider endpoint, e.g. http://localhost:11434/v1
}

// JobsConfig tunes the execution engine.
type JobsConfig struct {
	Timeout               time.Duration // per-execution deadline, 0 disables
	StaleAfter            time.Duration // sweeper deadline for stuck running jobs, 0 disables
	DedupTTL              time.Duration // dispatch trigger dedup window
	ProgressRetentionDays int           // prune horizon for terminal jobs' events, 0 disables
}

type APIConfig struct {
	Key string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("AI_PROVIDER", "openai")
	viper.SetDefault("AI_MODEL", "gpt-4o-mini")
	viper.SetDefault("AI_RESEARCH_MODEL", "gpt-4o-search-preview")
	viper.SetDefault("JOB_TIMEOUT", "15m")
	viper.SetDefault("JOB_STALE_AFTER", "30m")
	viper.SetDefault("DISPATCH_DEDUP_TTL", "10m")
	viper.SetDefault("PROGRESS_RETENTION_DAYS", 30)

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		AI: AIConfig{
			Provider:      viper.GetString("AI_PROVIDER"),
			APIKey:        viper.GetString("AI_API_KEY"),
			Model:         viper.GetString("AI_MODEL"),
			ResearchModel: viper.GetString("AI_RESEARCH_MODEL"),
			BaseURL:       viper.GetString("AI_BASE_URL"),
		},
		Jobs: JobsConfig{
			Timeout:               parseDuration("JOB_TIMEOUT", 15*time.Minute),
			StaleAfter:            parseDuration("JOB_STALE_AFTER", 30*time.Minute),
			DedupTTL:              parseDuration("DISPATCH_DEDUP_TTL", 10*time.Minute),
			ProgressRetentionDays: viper.GetInt("PROGRESS_RETENTION_DAYS"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.AI.Provider == "openai" && cfg.AI.APIKey == "" {
		log.Println("WARNING: AI_API_KEY is not set")
	}

	return cfg, nil
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
