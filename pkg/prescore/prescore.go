// Package prescore fuses the per-stage signals into one deterministic risk
// score, routes the message and decides whether deep context is warranted.
package prescore

import (
	"strings"

	"github.com/phishguard/phish-triage/pkg/attachments"
	"github.com/phishguard/phish-triage/pkg/config"
	"github.com/phishguard/phish-triage/pkg/headers"
	"github.com/phishguard/phish-triage/pkg/textcues"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
	"github.com/phishguard/phish-triage/pkg/webpage"
)

// Routes
const (
	RouteAllow  = "allow"
	RouteReview = "review"
	RouteDeep   = "deep"
)

// Sub-sum caps
const (
	urlSubCap        = 60
	webSubCap        = 35
	attachmentSubCap = 35
	nlpSubCap        = 55

	receivedAnomalyWeight = 6
	receivedAnomalyCap    = 18

	blacklistedSenderWeight = 20
)

// Report is the fusion output
type Report struct {
	RiskScore   int      `json:"risk_score"`
	Route       string   `json:"route"`
	Reasons     []string `json:"reasons"`
	DeepContext bool     `json:"deep_context"`

	// Every URL the fusion saw: originals plus nested and
	// attachment-recovered ones, in analysis order
	CombinedURLs []string `json:"combined_urls"`

	Subtotals map[string]int `json:"subtotals,omitempty"`
}

// Scorer computes pre-scores under the configured thresholds
type Scorer struct {
	cfg *config.Config
}

// NewScorer creates a scorer
func NewScorer(cfg *config.Config) *Scorer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scorer{cfg: cfg}
}

// Inputs collects everything the fusion reads
type Inputs struct {
	SenderDomain string
	Headers      *headers.Signals
	URLs         []*urlrisk.Signal
	Pages        []*webpage.Signal
	Attachments  []attachments.Signal
	Cues         *textcues.Cues
}

// Score fuses the inputs into a routed report
func (s *Scorer) Score(in Inputs) *Report {
	report := &Report{
		Reasons:      []string{},
		CombinedURLs: []string{},
		Subtotals:    map[string]int{},
	}
	add := func(tag string) { report.Reasons = appendUnique(report.Reasons, tag) }
	for _, u := range in.URLs {
		report.CombinedURLs = appendUnique(report.CombinedURLs, u.URL)
	}

	headerSum := s.scoreHeaders(in.Headers, add)
	urlSum := s.scoreURLs(in.URLs, add)
	webSum := s.scoreWeb(in.Pages, add)
	attachSum := s.scoreAttachments(in.Attachments, add)
	nlpSum := s.scoreCues(in.Cues, add)
	senderSum := s.scoreSender(in.SenderDomain, add)

	report.Subtotals["header"] = headerSum
	report.Subtotals["url"] = urlSum
	report.Subtotals["web"] = webSum
	report.Subtotals["attachment"] = attachSum
	report.Subtotals["nlp"] = nlpSum
	if senderSum != 0 {
		report.Subtotals["sender"] = senderSum
	}

	score := headerSum + urlSum + webSum + attachSum + nlpSum + senderSum
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	report.RiskScore = score

	detection := s.cfg.Detection
	switch {
	case score <= detection.PreScoreReviewThreshold:
		report.Route = RouteAllow
	case score <= detection.PreScoreDeepThreshold:
		report.Route = RouteReview
	default:
		report.Route = RouteDeep
	}

	report.DeepContext = score >= detection.ContextTriggerScore ||
		anyURLFlag(in.URLs, urlrisk.FlagShortlink, urlrisk.FlagBrandSpoof, urlrisk.FlagLoginIntent) ||
		anyAttachmentFlag(in.Attachments, attachments.FlagMacroSuspected, attachments.FlagExtensionMismatch, attachments.FlagExecutableLike)

	return report
}

func (s *Scorer) scoreHeaders(sig *headers.Signals, add func(string)) int {
	if sig == nil {
		return 0
	}
	sum := 0
	if sig.SPF.Result == "fail" || sig.SPF.Result == "softfail" {
		sum += 16
		add("header:spf_fail")
	}
	if sig.DKIM.Result == "fail" {
		sum += 10
		add("header:dkim_fail")
	}
	if sig.DMARC.Result == "fail" {
		sum += 16
		add("header:dmarc_fail")
	}
	if sig.FromReplyToMismatch {
		sum += 12
		add("header:replyto_mismatch")
	}
	if n := len(sig.SuspiciousReceivedPatterns); n > 0 {
		anomalies := n * receivedAnomalyWeight
		if anomalies > receivedAnomalyCap {
			anomalies = receivedAnomalyCap
		}
		sum += anomalies
		add("header:received_anomalies")
	}
	return sum
}

func (s *Scorer) scoreURLs(urls []*urlrisk.Signal, add func(string)) int {
	sum := 0
	for _, u := range urls {
		if len(u.RiskFlags) == 0 {
			continue
		}
		sum += s.cfg.Detection.URLSuspiciousWeight

		if u.HasFlag(urlrisk.FlagShortlink) {
			sum += 12
			add("url:shortlink")
		}
		if u.HasFlag(urlrisk.FlagBrandSpoof) {
			sum += 16
			add("url:brand_spoof")
		}
		if u.HasFlag(urlrisk.FlagLoginIntent) {
			sum += 14
			add("url:login_intent")
		}
		if u.HasFlag(urlrisk.FlagPunycode) {
			sum += 10
			add("url:punycode")
		}
		if u.HasFlag(urlrisk.FlagSuspiciousPattern) {
			sum += 8
			add("url:suspicious_pattern")
		}
	}
	if sum > urlSubCap {
		sum = urlSubCap
	}
	return sum
}

func (s *Scorer) scoreWeb(pages []*webpage.Signal, add func(string)) int {
	sum := 0
	for _, p := range pages {
		if p.HasFlag(webpage.FlagCredentialHarvest) {
			sum += 18
			add("web:credential_harvest")
		}
		if p.HasFlag(webpage.FlagBrandImpersonation) {
			sum += 12
			add("web:brand_impersonation")
		}
		if p.HasFlag(webpage.FlagOTPCollection) {
			sum += 8
			add("web:otp_collection")
		}
	}
	if sum > webSubCap {
		sum = webSubCap
	}
	return sum
}

func (s *Scorer) scoreAttachments(atts []attachments.Signal, add func(string)) int {
	sum := 0
	for i := range atts {
		a := &atts[i]
		if a.HasFlag(attachments.FlagMacroSuspected) {
			sum += 18
			add("attachment:macro_suspected")
		}
		if a.HasFlag(attachments.FlagExtensionMismatch) {
			sum += 16
			add("attachment:extension_mismatch")
		}
		if a.HasFlag(attachments.FlagExecutableLike) {
			sum += 14
			add("attachment:executable_like")
		}
		if a.HasFlag(attachments.FlagArchive) {
			sum += 8
			add("attachment:archive")
		}
	}
	if sum > attachmentSubCap {
		sum = attachmentSubCap
	}
	return sum
}

func (s *Scorer) scoreCues(cues *textcues.Cues, add func(string)) int {
	if cues == nil {
		return 0
	}
	sum := cues.Urgency*14 +
		cues.ThreatLanguage*16 +
		cues.PaymentOrGiftcard*9 +
		cues.CredentialRequest*18 +
		cues.ActionRequest*10 +
		cues.AccountTakeoverIntent*20 +
		cues.SubjectRisk*18

	keywordBoost := float64(4 * cues.PhishingKeywordHits)
	if keywordBoost > 24 {
		keywordBoost = 24
	}
	sum += keywordBoost

	if cues.Urgency > 0 {
		add("text:urgency")
	}
	if cues.ThreatLanguage > 0 {
		add("text:threat_language")
	}

	// Combo bonuses for co-occurring pressure patterns
	if cues.CredentialRequest > 0 && (cues.Urgency > 0 || cues.ThreatLanguage > 0) {
		sum += 10
		add("text:credential_pressure")
	}
	if cues.AccountTakeoverIntent > 0 && (cues.CredentialRequest > 0 || cues.ActionRequest > 0) {
		sum += 8
		add("text:account_takeover_pattern")
	}
	if len(cues.Impersonation) > 0 && (cues.Urgency > 0 || cues.ActionRequest > 0) {
		sum += 6
		add("text:impersonation_pressure")
	}
	if cues.SubjectRisk >= 0.66 {
		sum += 8
		add("text:subject_attack_pattern")
	}
	if cues.PhishingKeywordHits >= 4 {
		sum += 8
		add("text:phishing_keywords")
	}

	total := int(sum + 0.5)
	if total > nlpSubCap {
		total = nlpSubCap
	}
	return total
}

func (s *Scorer) scoreSender(domain string, add func(string)) int {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return 0
	}
	if s.cfg.IsBlacklistedDomain(domain) {
		add("sender:blacklisted")
		return blacklistedSenderWeight
	}
	return 0
}

func anyURLFlag(urls []*urlrisk.Signal, flags ...string) bool {
	for _, u := range urls {
		for _, f := range flags {
			if u.HasFlag(f) {
				return true
			}
		}
	}
	return false
}

func anyAttachmentFlag(atts []attachments.Signal, flags ...string) bool {
	for i := range atts {
		for _, f := range flags {
			if atts[i].HasFlag(f) {
				return true
			}
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
