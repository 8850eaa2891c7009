package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DetailDBURL string
	SimpleDBURL string
	JournalPath string
	DestRoot    string
	LogPath     string
	Workers     int
	Paths       string
	Catalog     CatalogConfig
	Fetch       FetchConfig
	Scheduler   SchedulerConfig
	Mirror      MirrorConfig
	Load        LoadConfig
	Cities      []string
}

type CatalogConfig struct {
	PageURL string
	BaseURL string
}

type FetchConfig struct {
	DelayMS int
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type MirrorConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
}

// Enabled reports whether the archive mirror is configured at all.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

type LoadConfig struct {
	SelectedDetail  bool
	IncludeCalendar bool
	Policy          string
}

// settings is the optional YAML file layered over the environment.
type settings struct {
	Cities          []string `yaml:"cities"`
	Paths           string   `yaml:"paths"`
	DestRoot        string   `yaml:"dest_root"`
	Workers         int      `yaml:"workers"`
	SelectedDetail  *bool    `yaml:"selected_detail"`
	IncludeCalendar *bool    `yaml:"include_calendar"`
	Policy          string   `yaml:"policy"`
	Cron            string   `yaml:"cron"`
	Interval        string   `yaml:"interval"`
}

// Load reads .env, the environment, and an optional YAML settings file.
// An empty path falls back to IA_SETTINGS, then to no file at all.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DetailDBURL: getEnv("IA_DETAIL_DB_URL", "postgres://postgres@localhost:5432/ia_detail"),
		SimpleDBURL: getEnv("IA_SIMPLE_DB_URL", "postgres://postgres@localhost:5432/ia_simple"),
		JournalPath: getEnv("IA_JOURNAL_PATH", "collector.db"),
		DestRoot:    getEnv("IA_DEST_ROOT", "airbnb_data"),
		LogPath:     getEnv("IA_LOG_PATH", "collector.log"),
		Workers:     getEnvInt("IA_WORKERS", 4),
		Paths:       getEnv("IA_PATHS", "all"),
		Catalog: CatalogConfig{
			PageURL: getEnv("IA_CATALOG_URL", "https://insideairbnb.com/get-the-data/"),
			BaseURL: getEnv("IA_BASE_URL", "https://data.insideairbnb.com"),
		},
		Fetch: FetchConfig{
			DelayMS: getEnvInt("IA_FETCH_DELAY_MS", 250),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("IA_CRON"),
		},
		Mirror: MirrorConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "archives"),
		},
		Load: LoadConfig{
			SelectedDetail:  getEnvBool("IA_SELECTED_DETAIL", false),
			IncludeCalendar: getEnvBool("IA_INCLUDE_CALENDAR", false),
			Policy:          getEnv("IA_PARSE_POLICY", "null"),
		},
	}

	if interval := os.Getenv("IA_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if path == "" {
		path = os.Getenv("IA_SETTINGS")
	}
	if path != "" {
		if err := cfg.applySettings(path); err != nil {
			return nil, err
		}
	}

	if cfg.Load.Policy != "null" && cfg.Load.Policy != "drop" {
		return nil, fmt.Errorf("invalid parse policy %q (want null or drop)", cfg.Load.Policy)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg, nil
}

func (c *Config) applySettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}

	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	if len(s.Cities) > 0 {
		c.Cities = s.Cities
	}
	if s.Paths != "" {
		c.Paths = s.Paths
	}
	if s.DestRoot != "" {
		c.DestRoot = s.DestRoot
	}
	if s.Workers > 0 {
		c.Workers = s.Workers
	}
	if s.SelectedDetail != nil {
		c.Load.SelectedDetail = *s.SelectedDetail
	}
	if s.IncludeCalendar != nil {
		c.Load.IncludeCalendar = *s.IncludeCalendar
	}
	if s.Policy != "" {
		c.Load.Policy = s.Policy
	}
	if s.Cron != "" {
		c.Scheduler.Cron = s.Cron
	}
	if s.Interval != "" {
		d, err := time.ParseDuration(s.Interval)
		if err != nil {
			return fmt.Errorf("parse settings interval: %w", err)
		}
		c.Scheduler.Interval = d
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}
