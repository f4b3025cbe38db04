package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents phish-triage configuration
type Config struct {
	// Pre-score thresholds and routing
	Detection DetectionConfig `yaml:"detection"`

	// Trusted/blacklisted sender lists
	Lists ListsConfig `yaml:"lists"`

	// Safe fetcher settings
	Fetch FetchConfig `yaml:"fetch"`

	// Bounded decoding budgets
	Decode DecodeConfig `yaml:"decode"`

	// Deep analysis switches
	Deep DeepConfig `yaml:"deep"`

	// Judge oracle settings
	Judge JudgeConfig `yaml:"judge"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Optional Redis audit trail
	Audit AuditConfig `yaml:"audit"`
}

// DetectionConfig contains pre-score and calibration parameters
type DetectionConfig struct {
	// Routing thresholds
	PreScoreReviewThreshold int `yaml:"pre_score_review_threshold"` // score <= this => allow
	PreScoreDeepThreshold   int `yaml:"pre_score_deep_threshold"`   // score <= this => review
	ContextTriggerScore     int `yaml:"context_trigger_score"`      // score >= this => deep context

	// Suspicious band for verdict calibration
	SuspiciousMinScore int `yaml:"suspicious_min_score"`
	SuspiciousMaxScore int `yaml:"suspicious_max_score"`

	// Per-URL weight when any risk flag is present
	URLSuspiciousWeight int `yaml:"url_suspicious_weight"`

	// Spam keyword tiers for the independent spam label
	SpamKeywords KeywordLists `yaml:"spam_keywords"`
}

// KeywordLists contains promotional keyword categories
type KeywordLists struct {
	HighRisk   []string `yaml:"high_risk"`
	MediumRisk []string `yaml:"medium_risk"`
	LowRisk    []string `yaml:"low_risk"`
}

// ListsConfig contains sender domain lists
type ListsConfig struct {
	TrustedDomains     []string `yaml:"trusted_domains"`
	BlacklistedDomains []string `yaml:"blacklisted_domains"`
}

// FetchConfig contains safe fetcher settings
type FetchConfig struct {
	Enabled             bool   `yaml:"enabled"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	ConnectTimeoutMs    int    `yaml:"connect_timeout_ms"`
	MaxRedirects        int    `yaml:"max_redirects"`
	MaxBytes            int64  `yaml:"max_bytes"`
	AllowPrivateNetwork bool   `yaml:"allow_private_network"`
	UserAgent           string `yaml:"user_agent"`

	// internal, firejail or docker
	SandboxBackend       string `yaml:"sandbox_backend"`
	SandboxExecTimeoutMs int    `yaml:"sandbox_exec_timeout_ms"`

	// Deep page fetch fan-out
	MaxPageFetches int `yaml:"max_page_fetches"`
}

// DecodeConfig contains bounded decoding budgets
type DecodeConfig struct {
	MaxInputChars    int `yaml:"max_input_chars"`
	MaxOutputChars   int `yaml:"max_output_chars"`
	MaxRounds        int `yaml:"max_rounds"`
	MaxNestedURLs    int `yaml:"max_nested_urls"`
	MaxBase64Input   int `yaml:"max_base64_input"`
	MaxBase64Output  int `yaml:"max_base64_output"`
	MaxDataURIOutput int `yaml:"max_data_uri_output"`
}

// DeepConfig contains deep-analysis switches
type DeepConfig struct {
	Enabled                  bool  `yaml:"enabled"`
	MaxAttachmentBytes       int64 `yaml:"max_attachment_bytes"`
	EnableOCR                bool  `yaml:"enable_ocr"`
	EnableQRDecode           bool  `yaml:"enable_qr_decode"`
	EnableAudioTranscription bool  `yaml:"enable_audio_transcription"`
}

// JudgeConfig contains judge oracle settings
type JudgeConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMs int  `yaml:"timeout_ms"`

	// Confidence thresholds for the merge state machine
	PromoteLowToSuspiciousConfidence float64 `yaml:"promote_low_to_suspicious_confidence"`
	OverrideMidBandConfidence        float64 `yaml:"override_mid_band_confidence"`

	// never, sampled or always
	AllowMode       string  `yaml:"allow_mode"`
	AllowSampleRate float64 `yaml:"allow_sample_rate"`
	AllowSampleSalt string  `yaml:"allow_sample_salt"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`   // log file path, empty = stderr
}

// AuditConfig contains the optional Redis audit trail settings
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
	TTL       string `yaml:"ttl"` // Duration string like "168h"
}

// DefaultConfig returns phish-triage default configuration
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			PreScoreReviewThreshold: 30,
			PreScoreDeepThreshold:   70,
			ContextTriggerScore:     35,
			SuspiciousMinScore:      30,
			SuspiciousMaxScore:      34,
			URLSuspiciousWeight:     8,
			SpamKeywords: KeywordLists{
				HighRisk: []string{
					"limited time offer", "act now", "buy now", "order now",
					"free money", "you have won", "congratulations", "lottery",
					"risk-free", "100% free",
				},
				MediumRisk: []string{
					"special offer", "discount", "click here", "save money",
					"exclusive deal", "best price", "cash back",
				},
				LowRisk: []string{
					"unsubscribe", "newsletter", "promotion", "sale", "offer",
					"deal", "bonus",
				},
			},
		},
		Lists: ListsConfig{
			TrustedDomains:     []string{},
			BlacklistedDomains: []string{},
		},
		Fetch: FetchConfig{
			Enabled:              false,
			TimeoutMs:            8000,
			ConnectTimeoutMs:     4000,
			MaxRedirects:         5,
			MaxBytes:             1 << 20, // 1 MB
			AllowPrivateNetwork:  false,
			UserAgent:            "phish-triage/1.0 (+safe-fetch)",
			SandboxBackend:       "internal",
			SandboxExecTimeoutMs: 20000,
			MaxPageFetches:       6,
		},
		Decode: DecodeConfig{
			MaxInputChars:    65536,
			MaxOutputChars:   65536,
			MaxRounds:        3,
			MaxNestedURLs:    8,
			MaxBase64Input:   8192,
			MaxBase64Output:  8192,
			MaxDataURIOutput: 16384,
		},
		Deep: DeepConfig{
			Enabled:                  true,
			MaxAttachmentBytes:       4 << 20, // 4 MB
			EnableOCR:                false,
			EnableQRDecode:           false,
			EnableAudioTranscription: false,
		},
		Judge: JudgeConfig{
			Enabled:                          false,
			TimeoutMs:                        30000,
			PromoteLowToSuspiciousConfidence: 0.75,
			OverrideMidBandConfidence:        0.58,
			AllowMode:                        "never",
			AllowSampleRate:                  0.0,
			AllowSampleSalt:                  "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Audit: AuditConfig{
			Enabled:   false,
			RedisURL:  "redis://localhost:6379",
			KeyPrefix: "phishtriage:audit",
			TTL:       "168h",
		},
	}
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	d := c.Detection
	if d.PreScoreReviewThreshold < 0 || d.PreScoreReviewThreshold > 100 {
		return fmt.Errorf("pre_score_review_threshold must be in [0,100]")
	}
	if d.PreScoreDeepThreshold < d.PreScoreReviewThreshold || d.PreScoreDeepThreshold > 100 {
		return fmt.Errorf("pre_score_deep_threshold must be in [review_threshold,100]")
	}
	if d.SuspiciousMinScore < 0 || d.SuspiciousMaxScore < d.SuspiciousMinScore || d.SuspiciousMaxScore > 100 {
		return fmt.Errorf("suspicious band must satisfy 0 <= min <= max <= 100")
	}
	if d.URLSuspiciousWeight < 0 {
		return fmt.Errorf("url_suspicious_weight must be >= 0")
	}

	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch max_redirects must be >= 0")
	}
	if c.Fetch.MaxBytes < 1024 {
		return fmt.Errorf("fetch max_bytes must be >= 1024")
	}
	switch c.Fetch.SandboxBackend {
	case "internal", "firejail", "docker":
	default:
		return fmt.Errorf("fetch sandbox_backend must be internal, firejail or docker")
	}

	switch c.Judge.AllowMode {
	case "never", "sampled", "always":
	default:
		return fmt.Errorf("judge allow_mode must be never, sampled or always")
	}
	if c.Judge.AllowSampleRate < 0 || c.Judge.AllowSampleRate > 1 {
		return fmt.Errorf("judge allow_sample_rate must be in [0,1]")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging format must be json or text")
	}

	return nil
}

// IsTrustedDomain checks if a sender domain is trusted
func (c *Config) IsTrustedDomain(domain string) bool {
	for _, trusted := range c.Lists.TrustedDomains {
		if domain == trusted {
			return true
		}
	}
	return false
}

// IsBlacklistedDomain checks if a sender domain is blacklisted
func (c *Config) IsBlacklistedDomain(domain string) bool {
	for _, black := range c.Lists.BlacklistedDomains {
		if domain == black {
			return true
		}
	}
	return false
}
