package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Browser  BrowserConfig
	Executor ExecutorConfig
	Analyzer AnalyzerConfig
	Recorder RecorderConfig
	Reports  ReportsConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	Mode         string // debug, release
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Charset  string
}

type JWTConfig struct {
	Secret      string
	ExpireHours int
}

type BrowserConfig struct {
	ExecPath  string
	Headless  bool
	UserAgent string
	Width     int
	Height    int
	DataDir   string
}

type ExecutorConfig struct {
	Workers         int
	TimeoutSeconds  int
	MaxRetries      int
	RetryBaseMs     int
	RetryMultiplier float64
	RetryMaxDelayMs int
	LoadBudgetMs    int
	ArtifactDir     string
	CategoryCap     int
}

type AnalyzerConfig struct {
	StableTimeoutSeconds int
	MaxLinks             int
	MaxTables            int
	MaxWidgets           int
}

type RecorderConfig struct {
	PollIntervalMs  int
	WaitThresholdMs int
}

type ReportsConfig struct {
	Dir         string
	HistorySize int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Mode:         getEnv("SERVER_MODE", "debug"),
			ReadTimeout:  time.Duration(getEnvAsInt("SERVER_READ_TIMEOUT", 60)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("SERVER_WRITE_TIMEOUT", 60)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 3306),
			Username: getEnv("DB_USERNAME", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_DATABASE", "smarttest"),
			Charset:  getEnv("DB_CHARSET", "utf8mb4"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "smarttest-secret-key"),
			ExpireHours: getEnvAsInt("JWT_EXPIRE_HOURS", 24),
		},
		Browser: BrowserConfig{
			ExecPath:  getEnv("CHROME_PATH", ""),
			Headless:  getEnvAsBool("CHROME_HEADLESS", true),
			UserAgent: getEnv("CHROME_USER_AGENT", ""),
			Width:     getEnvAsInt("CHROME_WIDTH", 1920),
			Height:    getEnvAsInt("CHROME_HEIGHT", 1080),
			DataDir:   getEnv("CHROME_DATA_DIR", ""),
		},
		Executor: ExecutorConfig{
			Workers:         getEnvAsInt("EXECUTOR_WORKERS", 3),
			TimeoutSeconds:  getEnvAsInt("EXECUTOR_TIMEOUT", 600),
			MaxRetries:      getEnvAsInt("EXECUTOR_MAX_RETRIES", 3),
			RetryBaseMs:     getEnvAsInt("EXECUTOR_RETRY_BASE_MS", 500),
			RetryMultiplier: getEnvAsFloat("EXECUTOR_RETRY_MULTIPLIER", 2.0),
			RetryMaxDelayMs: getEnvAsInt("EXECUTOR_RETRY_MAX_DELAY_MS", 5000),
			LoadBudgetMs:    getEnvAsInt("EXECUTOR_LOAD_BUDGET_MS", 10000),
			ArtifactDir:     getEnv("EXECUTOR_ARTIFACT_DIR", "./artifacts"),
			CategoryCap:     getEnvAsInt("EXECUTOR_CATEGORY_CAP", 0),
		},
		Analyzer: AnalyzerConfig{
			StableTimeoutSeconds: getEnvAsInt("ANALYZER_STABLE_TIMEOUT", 15),
			MaxLinks:             getEnvAsInt("ANALYZER_MAX_LINKS", 30),
			MaxTables:            getEnvAsInt("ANALYZER_MAX_TABLES", 10),
			MaxWidgets:           getEnvAsInt("ANALYZER_MAX_WIDGETS", 20),
		},
		Recorder: RecorderConfig{
			PollIntervalMs:  getEnvAsInt("RECORDER_POLL_INTERVAL_MS", 250),
			WaitThresholdMs: getEnvAsInt("RECORDER_WAIT_THRESHOLD_MS", 2000),
		},
		Reports: ReportsConfig{
			Dir:         getEnv("REPORTS_DIR", "./reports"),
			HistorySize: getEnvAsInt("REPORTS_HISTORY_SIZE", 25),
		},
	}

	return cfg, nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
