// Package webpage fetches candidate URLs through the guarded fetcher and
// reduces each landing page to a compact credential-harvest signal.
package webpage

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phishguard/phish-triage/pkg/decode"
	"github.com/phishguard/phish-triage/pkg/fetcher"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
)

// Risk flags, closed vocabulary
const (
	FlagCredentialHarvest  = "credential-harvest"
	FlagOTPCollection      = "otp-collection"
	FlagBrandImpersonation = "brand-impersonation"
	FlagFetchAnomaly       = "fetch-anomaly"
)

const maxTitleChars = 180

// Signal is the analysis of one fetched page
type Signal struct {
	URL        string `json:"url"`
	FetchOK    bool   `json:"fetch_ok"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	FinalURL   string `json:"final_url,omitempty"`

	Title                 string   `json:"title,omitempty"`
	FormCount             int      `json:"form_count"`
	HasPasswordField      bool     `json:"has_password_field"`
	HasOTPField           bool     `json:"has_otp_field"`
	ExternalResourceCount int      `json:"external_resource_count"`
	TextBrandHints        []string `json:"text_brand_hints"`
	RiskFlags             []string `json:"risk_flags"`
	Confidence            float64  `json:"confidence"`
}

// HasFlag reports whether the signal carries the given risk flag
func (s *Signal) HasFlag(flag string) bool {
	for _, f := range s.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Analyzer fetches and inspects landing pages
type Analyzer struct {
	fetcher        *fetcher.Fetcher
	decoder        *decode.Decoder
	maxPageFetches int
	logger         *logrus.Logger
}

// NewAnalyzer creates a page content analyzer
func NewAnalyzer(f *fetcher.Fetcher, decoder *decode.Decoder, maxPageFetches int, logger *logrus.Logger) *Analyzer {
	if decoder == nil {
		decoder = decode.NewDecoder(decode.DefaultBudget())
	}
	if maxPageFetches <= 0 {
		maxPageFetches = 6
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{fetcher: f, decoder: decoder, maxPageFetches: maxPageFetches, logger: logger}
}

// Analyze fetches the deep-worthy URLs among the given URL signals, in input
// order, up to the per-message page budget.
func (a *Analyzer) Analyze(ctx context.Context, urlSignals []*urlrisk.Signal) []*Signal {
	signals := []*Signal{}
	for _, us := range urlSignals {
		if len(signals) >= a.maxPageFetches {
			break
		}
		if !deepWorthy(us) {
			continue
		}
		target := us.Normalized
		if us.ExpandedURL != "" {
			target = us.ExpandedURL
		}
		signals = append(signals, a.AnalyzeURL(ctx, target))
	}
	return signals
}

// deepWorthy selects URLs whose static risk justifies a page fetch
func deepWorthy(us *urlrisk.Signal) bool {
	return us.IsShortlink ||
		us.LooksLikeBrand != nil ||
		us.HasLoginKeywords ||
		us.IsPunycode ||
		us.HasFlag(urlrisk.FlagNestedURLParam) ||
		(us.Domain != nil && us.Domain.RiskScore >= 40)
}

// AnalyzeURL fetches a single URL and reduces the response body
func (a *Analyzer) AnalyzeURL(ctx context.Context, rawURL string) *Signal {
	signal := &Signal{
		URL:            rawURL,
		TextBrandHints: []string{},
		RiskFlags:      []string{},
	}

	result := a.fetcher.Fetch(ctx, rawURL)
	signal.Outcome = string(result.Outcome)
	signal.Reason = result.Reason
	signal.HTTPStatus = result.HTTPStatus
	signal.FinalURL = result.FinalURL

	if !result.OK() {
		// A skipped fetch is a policy decision, not an anomaly
		if result.Outcome != fetcher.OutcomeSkipped {
			signal.RiskFlags = append(signal.RiskFlags, FlagFetchAnomaly)
			signal.Confidence = 0.6
		} else {
			signal.Confidence = 0.3
		}
		a.logger.WithFields(logrus.Fields{
			"url":     rawURL,
			"outcome": result.Outcome,
		}).Debug("page fetch not usable")
		return signal
	}

	signal.FetchOK = true
	signal.Confidence = 0.9

	if !strings.Contains(strings.ToLower(result.ContentType), "html") && result.ContentType != "" {
		// Non-HTML landing content, nothing to reduce
		return signal
	}

	view := a.decoder.CompactHTML(string(result.Body))
	signal.Title = truncate(view.Title, maxTitleChars)
	signal.FormCount = view.FormCount
	signal.HasPasswordField = view.PasswordFields > 0
	signal.HasOTPField = view.OTPFields > 0
	signal.ExternalResourceCount = len(view.ExternalScripts) + view.Iframes
	signal.TextBrandHints = view.BrandHits

	if signal.HasPasswordField && signal.FormCount >= 1 {
		signal.RiskFlags = append(signal.RiskFlags, FlagCredentialHarvest)
	}
	if signal.HasOTPField {
		signal.RiskFlags = append(signal.RiskFlags, FlagOTPCollection)
	}
	if len(signal.TextBrandHints) > 0 && (signal.HasPasswordField || signal.FormCount >= 1) {
		signal.RiskFlags = append(signal.RiskFlags, FlagBrandImpersonation)
	}

	return signal
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
