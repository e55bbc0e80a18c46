package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/quillflow/pkg/git"
	"github.com/ifuryst/quillflow/pkg/logger"
	"github.com/ifuryst/quillflow/pkg/storage"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	AI        AIConfig        `yaml:"ai"`
	Image     ImageConfig     `yaml:"image"`
	Storage   storage.Config  `yaml:"storage"`
	License   LicenseConfig   `yaml:"license"`
	Redis     RedisConfig     `yaml:"redis"`
	Site      SiteConfig      `yaml:"site"`
	Publisher PublisherConfig `yaml:"publisher"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	Path     string `yaml:"path"` // sqlite file
}

// SchedulerConfig holds cron specs of the automation triggers.
type SchedulerConfig struct {
	Disabled        bool   `yaml:"disabled"`
	StyleRefresh    string `yaml:"style_refresh"`
	IdeasSemi       string `yaml:"ideas_semi"`
	IdeasFull       string `yaml:"ideas_full"`
	FullCycle       string `yaml:"full_cycle"`
	QuotaReset      string `yaml:"quota_reset"`
	LicenseVerify   string `yaml:"license_verify"`
	BacklogLowWater int    `yaml:"backlog_low_water"`
	StyleSampleSize int    `yaml:"style_sample_size"`
	LockTTL         string `yaml:"lock_ttl"`
}

type PipelineConfig struct {
	KeywordCount     int `yaml:"keyword_count"`
	MinKeywordLength int `yaml:"min_keyword_length"`
	SimilarCount     int `yaml:"similar_count"`
	SignalCount      int `yaml:"signal_count"`
	CorpusSize       int `yaml:"corpus_size"`
}

type AIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

type ImageConfig struct {
	Timeout        string `yaml:"timeout"`
	OpenAIModel    string `yaml:"openai_model"`
	UnsplashKey    string `yaml:"unsplash_key"`
	UnsplashURL    string `yaml:"unsplash_url"`
	PexelsKey      string `yaml:"pexels_key"`
	PexelsURL      string `yaml:"pexels_url"`
	MirrorToBucket bool   `yaml:"mirror_to_bucket"`
}

type LicenseConfig struct {
	Key          string `yaml:"key"`
	ProductID    string `yaml:"product_id"`
	AuthorityURL string `yaml:"authority_url"`
	TTL          string `yaml:"ttl"`
	RetryAfter   string `yaml:"retry_after"`
	Timeout      string `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// PublisherConfig selects the host publish operation: cms, webhook or git.
type PublisherConfig struct {
	Type         string     `yaml:"type"`
	WebhookURL   string     `yaml:"webhook_url"`
	WebhookToken string     `yaml:"webhook_token"`
	Timeout      string     `yaml:"timeout"`
	Git          git.Config `yaml:"git"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills every empty field with its default value.
func (cfg *Config) SetDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "quillflow.db"
	}

	if cfg.Scheduler.StyleRefresh == "" {
		cfg.Scheduler.StyleRefresh = "@every 168h"
	}
	if cfg.Scheduler.IdeasSemi == "" {
		cfg.Scheduler.IdeasSemi = "@every 24h"
	}
	if cfg.Scheduler.IdeasFull == "" {
		cfg.Scheduler.IdeasFull = "@every 6h"
	}
	if cfg.Scheduler.FullCycle == "" {
		cfg.Scheduler.FullCycle = "@every 12h"
	}
	if cfg.Scheduler.QuotaReset == "" {
		cfg.Scheduler.QuotaReset = "@monthly"
	}
	if cfg.Scheduler.LicenseVerify == "" {
		cfg.Scheduler.LicenseVerify = "@every 12h"
	}
	if cfg.Scheduler.BacklogLowWater == 0 {
		cfg.Scheduler.BacklogLowWater = 3
	}
	if cfg.Scheduler.StyleSampleSize == 0 {
		cfg.Scheduler.StyleSampleSize = 5
	}
	if cfg.Scheduler.LockTTL == "" {
		cfg.Scheduler.LockTTL = "30m"
	}

	if cfg.Pipeline.KeywordCount == 0 {
		cfg.Pipeline.KeywordCount = 10
	}
	if cfg.Pipeline.MinKeywordLength == 0 {
		cfg.Pipeline.MinKeywordLength = 4
	}
	if cfg.Pipeline.SimilarCount == 0 {
		cfg.Pipeline.SimilarCount = 3
	}
	if cfg.Pipeline.SignalCount == 0 {
		cfg.Pipeline.SignalCount = 3
	}
	if cfg.Pipeline.CorpusSize == 0 {
		cfg.Pipeline.CorpusSize = 100
	}

	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.Timeout == "" {
		cfg.AI.Timeout = "60s"
	}

	if cfg.Image.Timeout == "" {
		cfg.Image.Timeout = "30s"
	}
	if cfg.Image.OpenAIModel == "" {
		cfg.Image.OpenAIModel = "dall-e-3"
	}
	if cfg.Image.UnsplashURL == "" {
		cfg.Image.UnsplashURL = "https://api.unsplash.com"
	}
	if cfg.Image.PexelsURL == "" {
		cfg.Image.PexelsURL = "https://api.pexels.com/v1"
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}

	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "cms"
	}
	if cfg.Publisher.Timeout == "" {
		cfg.Publisher.Timeout = "30s"
	}

	if cfg.License.TTL == "" {
		cfg.License.TTL = "24h"
	}
	if cfg.License.RetryAfter == "" {
		cfg.License.RetryAfter = "1h"
	}
	if cfg.License.Timeout == "" {
		cfg.License.Timeout = "15s"
	}
}
