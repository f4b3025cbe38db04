// Package triage orchestrates the full analysis pipeline: parse, fixed skill
// chain, deterministic fusion, optional judge, calibration and validation.
package triage

import (
	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/evidence"
	"github.com/phishguard/phish-triage/pkg/judge"
	"github.com/phishguard/phish-triage/pkg/skills"
	"github.com/phishguard/phish-triage/pkg/verdict"
)

// Analysis paths
const (
	PathFast     = "FAST"
	PathStandard = "STANDARD"
	PathDeep     = "DEEP"
)

// Event statuses
const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusError    = "error"
	StatusFallback = "fallback"
	StatusSkipped  = "skipped"
)

// Event is one stage progress notification
type Event struct {
	Stage   string      `json:"stage"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// EvidenceBundle embeds everything that backs the verdict
type EvidenceBundle struct {
	Pack     *evidence.Pack     `json:"pack"`
	Judge    *judge.Output      `json:"judge,omitempty"`
	Precheck interface{}        `json:"precheck,omitempty"`
	Trace    []skills.StepTrace `json:"trace,omitempty"`
	Records  []*evidence.Record `json:"records,omitempty"`
}

// TriageResult is the final published output of one analysis
type TriageResult struct {
	Verdict    string  `json:"verdict"` // benign or phishing
	Reason     string  `json:"reason"`
	Path       string  `json:"path"`
	RiskScore  int     `json:"risk_score"`
	Confidence float64 `json:"confidence"`

	EmailLabel   string `json:"email_label"`
	IsSpam       bool   `json:"is_spam"`
	IsPhishEmail bool   `json:"is_phish_email"`
	SpamScore    int    `json:"spam_score"`

	ThreatTags         []string `json:"threat_tags"`
	Indicators         []string `json:"indicators"`
	RecommendedActions []string `json:"recommended_actions"`

	Input       *email.EmailInput `json:"input,omitempty"`
	URLs        []string          `json:"urls"`
	Attachments []string          `json:"attachments"`

	ProviderUsed     string          `json:"provider_used"`
	Evidence         *EvidenceBundle `json:"evidence,omitempty"`
	ValidationIssues []verdict.Issue `json:"validation_issues,omitempty"`
}

// threatTagFor maps reason prefixes to coarse threat tags
var threatTagMap = map[string]string{
	"url:brand_spoof":               "brand_impersonation",
	"url:shortlink":                 "link_obfuscation",
	"url:punycode":                  "link_obfuscation",
	"url:login_intent":              "credential_harvest",
	"web:credential_harvest":        "credential_harvest",
	"web:otp_collection":            "credential_harvest",
	"web:brand_impersonation":       "brand_impersonation",
	"attachment:macro_suspected":    "malicious_attachment",
	"attachment:executable_like":    "malicious_attachment",
	"attachment:extension_mismatch": "malicious_attachment",
	"header:spf_fail":               "sender_spoofing",
	"header:dmarc_fail":             "sender_spoofing",
	"header:replyto_mismatch":       "sender_spoofing",
	"text:credential_pressure":      "social_engineering",
	"text:account_takeover_pattern": "social_engineering",
	"text:impersonation_pressure":   "social_engineering",
	"sender:blacklisted":            "known_bad_sender",
}

func threatTags(reasons []string) []string {
	seen := make(map[string]bool)
	tags := []string{}
	for _, reason := range reasons {
		if tag, ok := threatTagMap[reason]; ok && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func defaultActions(finalVerdict, route string) []string {
	if finalVerdict == verdict.Phishing {
		return []string{"quarantine", "report_to_security_team", "block_sender"}
	}
	if route == "review" {
		return []string{"deliver", "flag_for_review"}
	}
	return []string{"deliver"}
}
