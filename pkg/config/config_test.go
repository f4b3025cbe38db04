package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Detection.PreScoreReviewThreshold != 30 {
		t.Errorf("Expected review threshold 30, got %d", config.Detection.PreScoreReviewThreshold)
	}
	if config.Detection.PreScoreDeepThreshold != 70 {
		t.Errorf("Expected deep threshold 70, got %d", config.Detection.PreScoreDeepThreshold)
	}
	if config.Detection.SuspiciousMinScore != 30 || config.Detection.SuspiciousMaxScore != 34 {
		t.Errorf("Expected suspicious band [30,34], got [%d,%d]",
			config.Detection.SuspiciousMinScore, config.Detection.SuspiciousMaxScore)
	}
	if config.Fetch.Enabled {
		t.Error("Network fetch must default to disabled")
	}
	if config.Judge.Enabled {
		t.Error("Judge must default to disabled")
	}
	if config.Fetch.SandboxBackend != "internal" {
		t.Errorf("Expected internal sandbox backend, got %s", config.Fetch.SandboxBackend)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"review threshold out of range", func(c *Config) { c.Detection.PreScoreReviewThreshold = 150 }},
		{"deep below review", func(c *Config) { c.Detection.PreScoreDeepThreshold = 10 }},
		{"inverted suspicious band", func(c *Config) { c.Detection.SuspiciousMaxScore = 10 }},
		{"negative url weight", func(c *Config) { c.Detection.URLSuspiciousWeight = -1 }},
		{"negative redirects", func(c *Config) { c.Fetch.MaxRedirects = -1 }},
		{"tiny max bytes", func(c *Config) { c.Fetch.MaxBytes = 100 }},
		{"unknown sandbox backend", func(c *Config) { c.Fetch.SandboxBackend = "chroot" }},
		{"unknown allow mode", func(c *Config) { c.Judge.AllowMode = "sometimes" }},
		{"sample rate out of range", func(c *Config) { c.Judge.AllowSampleRate = 1.5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "phish-triage.yaml")

	original := DefaultConfig()
	original.Detection.PreScoreReviewThreshold = 25
	original.Lists.BlacklistedDomains = []string{"evil.test"}
	original.Fetch.Enabled = true
	original.Judge.AllowMode = "sampled"
	original.Judge.AllowSampleRate = 0.25

	if err := original.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Detection.PreScoreReviewThreshold != 25 {
		t.Errorf("Review threshold = %d, want 25", loaded.Detection.PreScoreReviewThreshold)
	}
	if len(loaded.Lists.BlacklistedDomains) != 1 || loaded.Lists.BlacklistedDomains[0] != "evil.test" {
		t.Errorf("Blacklist = %v", loaded.Lists.BlacklistedDomains)
	}
	if !loaded.Fetch.Enabled {
		t.Error("Fetch enabled flag lost in roundtrip")
	}
	if loaded.Judge.AllowSampleRate != 0.25 {
		t.Errorf("Sample rate = %v, want 0.25", loaded.Judge.AllowSampleRate)
	}
}

func TestLoadConfigDefaultsWithoutPath(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\"): %v", err)
	}
	if config.Detection.PreScoreDeepThreshold != 70 {
		t.Errorf("Expected defaults, got %+v", config.Detection)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	content := "detection:\n  pre_score_review_threshold: 20\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Detection.PreScoreReviewThreshold != 20 {
		t.Errorf("Override lost: %d", config.Detection.PreScoreReviewThreshold)
	}
	// Untouched fields keep their defaults
	if config.Detection.PreScoreDeepThreshold != 70 {
		t.Errorf("Default clobbered: %d", config.Detection.PreScoreDeepThreshold)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := "judge:\n  allow_mode: sometimes\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation failure")
	}
}

func TestDomainLists(t *testing.T) {
	config := DefaultConfig()
	config.Lists.TrustedDomains = []string{"corp.example"}
	config.Lists.BlacklistedDomains = []string{"evil.test"}

	if !config.IsTrustedDomain("corp.example") || config.IsTrustedDomain("other.example") {
		t.Error("Trusted domain check wrong")
	}
	if !config.IsBlacklistedDomain("evil.test") || config.IsBlacklistedDomain("corp.example") {
		t.Error("Blacklisted domain check wrong")
	}
}
