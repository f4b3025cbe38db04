package prescore

import (
	"testing"

	"github.com/phishguard/phish-triage/pkg/attachments"
	"github.com/phishguard/phish-triage/pkg/config"
	"github.com/phishguard/phish-triage/pkg/headers"
	"github.com/phishguard/phish-triage/pkg/textcues"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
	"github.com/phishguard/phish-triage/pkg/webpage"
)

func defaultScorer() *Scorer {
	return NewScorer(config.DefaultConfig())
}

func hasReason(report *Report, tag string) bool {
	for _, r := range report.Reasons {
		if r == tag {
			return true
		}
	}
	return false
}

func TestHeaderWeights(t *testing.T) {
	report := defaultScorer().Score(Inputs{
		Headers: &headers.Signals{
			SPF:                 headers.AuthResult{Result: "fail"},
			DKIM:                headers.AuthResult{Result: "fail"},
			DMARC:               headers.AuthResult{Result: "fail"},
			FromReplyToMismatch: true,
		},
	})

	// 16 + 10 + 16 + 12
	if report.Subtotals["header"] != 54 {
		t.Errorf("Header subtotal = %d, want 54", report.Subtotals["header"])
	}
	for _, tag := range []string{"header:spf_fail", "header:dkim_fail", "header:dmarc_fail", "header:replyto_mismatch"} {
		if !hasReason(report, tag) {
			t.Errorf("Missing reason %s in %v", tag, report.Reasons)
		}
	}
}

func TestSoftfailCountsAsSPFFail(t *testing.T) {
	report := defaultScorer().Score(Inputs{
		Headers: &headers.Signals{SPF: headers.AuthResult{Result: "softfail"}},
	})
	if report.Subtotals["header"] != 16 {
		t.Errorf("Header subtotal = %d, want 16", report.Subtotals["header"])
	}
}

func TestReceivedAnomaliesCapped(t *testing.T) {
	report := defaultScorer().Score(Inputs{
		Headers: &headers.Signals{
			SuspiciousReceivedPatterns: []string{"a", "b", "c", "d", "e"},
		},
	})
	// 5 * 6 capped at 18
	if report.Subtotals["header"] != 18 {
		t.Errorf("Header subtotal = %d, want 18", report.Subtotals["header"])
	}
	if !hasReason(report, "header:received_anomalies") {
		t.Errorf("Missing reason in %v", report.Reasons)
	}
}

func TestURLScoring(t *testing.T) {
	url := &urlrisk.Signal{
		RiskFlags: []string{
			urlrisk.FlagShortlink,
			urlrisk.FlagLoginIntent,
		},
		IsShortlink:      true,
		HasLoginKeywords: true,
	}

	report := defaultScorer().Score(Inputs{URLs: []*urlrisk.Signal{url}})
	// per-url weight 8 + shortlink 12 + login intent 14
	if report.Subtotals["url"] != 34 {
		t.Errorf("URL subtotal = %d, want 34", report.Subtotals["url"])
	}
	if !hasReason(report, "url:shortlink") || !hasReason(report, "url:login_intent") {
		t.Errorf("Missing url reasons in %v", report.Reasons)
	}
}

func TestURLSubCap(t *testing.T) {
	var urls []*urlrisk.Signal
	for i := 0; i < 6; i++ {
		urls = append(urls, &urlrisk.Signal{
			RiskFlags: []string{urlrisk.FlagBrandSpoof, urlrisk.FlagLoginIntent},
		})
	}

	report := defaultScorer().Score(Inputs{URLs: urls})
	if report.Subtotals["url"] != 60 {
		t.Errorf("URL subtotal = %d, want capped 60", report.Subtotals["url"])
	}
}

func TestCleanURLNotScored(t *testing.T) {
	report := defaultScorer().Score(Inputs{
		URLs: []*urlrisk.Signal{{Normalized: "https://example.com/", RiskFlags: []string{}}},
	})
	if report.Subtotals["url"] != 0 {
		t.Errorf("URL subtotal = %d, want 0 for flagless url", report.Subtotals["url"])
	}
}

func TestWebScoring(t *testing.T) {
	page := &webpage.Signal{RiskFlags: []string{
		webpage.FlagCredentialHarvest,
		webpage.FlagBrandImpersonation,
		webpage.FlagOTPCollection,
	}}

	report := defaultScorer().Score(Inputs{Pages: []*webpage.Signal{page}})
	// 18 + 12 + 8, capped at 35
	if report.Subtotals["web"] != 35 {
		t.Errorf("Web subtotal = %d, want 35", report.Subtotals["web"])
	}
}

func TestAttachmentScoring(t *testing.T) {
	att := attachments.Signal{RiskFlags: []string{
		attachments.FlagMacroSuspected,
		attachments.FlagExtensionMismatch,
	}}

	report := defaultScorer().Score(Inputs{Attachments: []attachments.Signal{att}})
	// 18 + 16, capped at 35
	if report.Subtotals["attachment"] != 34 {
		t.Errorf("Attachment subtotal = %d, want 34", report.Subtotals["attachment"])
	}
}

func TestArchiveAttachmentCarriesReason(t *testing.T) {
	att := attachments.Signal{RiskFlags: []string{attachments.FlagArchive}}

	report := defaultScorer().Score(Inputs{Attachments: []attachments.Signal{att}})
	if report.Subtotals["attachment"] != 8 {
		t.Errorf("Attachment subtotal = %d, want 8", report.Subtotals["attachment"])
	}
	if !hasReason(report, "attachment:archive") {
		t.Errorf("Missing attachment:archive reason in %v", report.Reasons)
	}
}

func TestCombinedURLs(t *testing.T) {
	report := defaultScorer().Score(Inputs{URLs: []*urlrisk.Signal{
		{URL: "https://ok.example/path?u=https%3A%2F%2Fevil.com%2Flogin"},
		{URL: "https://evil.com/login"},
		{URL: "https://evil.com/login"},
	}})

	want := []string{
		"https://ok.example/path?u=https%3A%2F%2Fevil.com%2Flogin",
		"https://evil.com/login",
	}
	if len(report.CombinedURLs) != len(want) {
		t.Fatalf("CombinedURLs = %v, want %v", report.CombinedURLs, want)
	}
	for i, u := range want {
		if report.CombinedURLs[i] != u {
			t.Errorf("CombinedURLs[%d] = %q, want %q", i, report.CombinedURLs[i], u)
		}
	}
}

func TestNLPComboBonuses(t *testing.T) {
	cues := &textcues.Cues{
		Urgency:           1,
		CredentialRequest: 1,
	}

	report := defaultScorer().Score(Inputs{Cues: cues})
	// 14 + 18 + combo 10 = 42
	if report.Subtotals["nlp"] != 42 {
		t.Errorf("NLP subtotal = %d, want 42", report.Subtotals["nlp"])
	}
	if !hasReason(report, "text:credential_pressure") {
		t.Errorf("Missing combo reason in %v", report.Reasons)
	}
}

func TestNLPSubCap(t *testing.T) {
	cues := &textcues.Cues{
		Urgency:               1,
		ThreatLanguage:        1,
		PaymentOrGiftcard:     1,
		CredentialRequest:     1,
		ActionRequest:         1,
		AccountTakeoverIntent: 1,
		SubjectRisk:           1,
		PhishingKeywordHits:   10,
		Impersonation:         []string{"bank"},
	}

	report := defaultScorer().Score(Inputs{Cues: cues})
	if report.Subtotals["nlp"] != 55 {
		t.Errorf("NLP subtotal = %d, want capped 55", report.Subtotals["nlp"])
	}
}

func TestBlacklistedSender(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Lists.BlacklistedDomains = []string{"evil.test"}

	report := NewScorer(cfg).Score(Inputs{SenderDomain: "evil.test"})
	if report.Subtotals["sender"] != 20 {
		t.Errorf("Sender subtotal = %d, want 20", report.Subtotals["sender"])
	}
	if !hasReason(report, "sender:blacklisted") {
		t.Errorf("Missing reason in %v", report.Reasons)
	}
}

func TestRouting(t *testing.T) {
	scorer := defaultScorer()

	allow := scorer.Score(Inputs{})
	if allow.Route != RouteAllow || allow.RiskScore != 0 {
		t.Errorf("Empty input: route %s score %d", allow.Route, allow.RiskScore)
	}

	review := scorer.Score(Inputs{Headers: &headers.Signals{
		SPF:   headers.AuthResult{Result: "fail"},
		DMARC: headers.AuthResult{Result: "fail"},
	}})
	// 32 > review threshold 30, <= deep threshold 70
	if review.Route != RouteReview {
		t.Errorf("Score %d routed %s, want review", review.RiskScore, review.Route)
	}

	deep := scorer.Score(Inputs{
		Headers: &headers.Signals{
			SPF:                 headers.AuthResult{Result: "fail"},
			DKIM:                headers.AuthResult{Result: "fail"},
			DMARC:               headers.AuthResult{Result: "fail"},
			FromReplyToMismatch: true,
		},
		URLs: []*urlrisk.Signal{{RiskFlags: []string{urlrisk.FlagBrandSpoof, urlrisk.FlagLoginIntent}}},
	})
	// 54 + 38 = 92 > 70
	if deep.Route != RouteDeep {
		t.Errorf("Score %d routed %s, want deep", deep.RiskScore, deep.Route)
	}
}

func TestScoreClippedAt100(t *testing.T) {
	report := defaultScorer().Score(Inputs{
		Headers: &headers.Signals{
			SPF:                 headers.AuthResult{Result: "fail"},
			DKIM:                headers.AuthResult{Result: "fail"},
			DMARC:               headers.AuthResult{Result: "fail"},
			FromReplyToMismatch: true,
		},
		URLs: []*urlrisk.Signal{
			{RiskFlags: []string{urlrisk.FlagBrandSpoof, urlrisk.FlagLoginIntent, urlrisk.FlagShortlink}},
			{RiskFlags: []string{urlrisk.FlagBrandSpoof, urlrisk.FlagLoginIntent}},
		},
		Cues: &textcues.Cues{Urgency: 1, ThreatLanguage: 1, CredentialRequest: 1, PhishingKeywordHits: 8},
	})

	if report.RiskScore != 100 {
		t.Errorf("RiskScore = %d, want clipped 100", report.RiskScore)
	}
}

func TestDeepContextGating(t *testing.T) {
	scorer := defaultScorer()

	// Low score, no flags
	if scorer.Score(Inputs{}).DeepContext {
		t.Error("Empty input must not request deep context")
	}

	// Flag alone triggers deep context even with a low score
	byFlag := scorer.Score(Inputs{
		URLs: []*urlrisk.Signal{{RiskFlags: []string{urlrisk.FlagShortlink}}},
	})
	if !byFlag.DeepContext {
		t.Error("Shortlink flag must request deep context")
	}

	byAttachment := scorer.Score(Inputs{
		Attachments: []attachments.Signal{{RiskFlags: []string{attachments.FlagMacroSuspected}}},
	})
	if !byAttachment.DeepContext {
		t.Error("Macro flag must request deep context")
	}

	// Score at the context trigger threshold
	byScore := scorer.Score(Inputs{Headers: &headers.Signals{
		SPF:                 headers.AuthResult{Result: "fail"},
		DMARC:               headers.AuthResult{Result: "fail"},
		FromReplyToMismatch: true,
	}})
	// 44 >= 35
	if !byScore.DeepContext {
		t.Errorf("Score %d must request deep context", byScore.RiskScore)
	}
}

func TestReasonsDeduplicated(t *testing.T) {
	urls := []*urlrisk.Signal{
		{RiskFlags: []string{urlrisk.FlagShortlink}},
		{RiskFlags: []string{urlrisk.FlagShortlink}},
	}

	report := defaultScorer().Score(Inputs{URLs: urls})
	count := 0
	for _, r := range report.Reasons {
		if r == "url:shortlink" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Reason repeated %d times", count)
	}
}
