package textcues

import (
	"strings"
	"testing"

	"github.com/phishguard/phish-triage/pkg/email"
)

func analyzeText(subject, text string) *Cues {
	return NewAnalyzer().Analyze(&email.EmailInput{Subject: subject, Text: text})
}

func TestUrgencySaturation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"no urgency", "the quarterly report is attached for reference", 0},
		{"one hit", "please respond urgently", 1.0 / 3.0},
		{"saturated", "urgent! act now! this expires today! last warning!", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cues := analyzeText("", tt.text)
			if diff := cues.Urgency - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("Urgency = %v, want %v", cues.Urgency, tt.want)
			}
		})
	}
}

func TestCredentialAndThreatCues(t *testing.T) {
	cues := analyzeText("", "Your account has been suspended. Verify your password immediately or face permanent deletion.")

	if cues.CredentialRequest == 0 {
		t.Error("Expected credential request cue")
	}
	if cues.ThreatLanguage == 0 {
		t.Error("Expected threat language cue")
	}
	if cues.Urgency == 0 {
		t.Error("Expected urgency cue")
	}
}

func TestSubjectRisk(t *testing.T) {
	tests := []struct {
		subject string
		min     float64
		max     float64
	}{
		{"", 0, 0},
		{"Weekly newsletter", 0, 0},
		{"Action required: verify your account", 0.6, 0.7},
		{"Action required!! Verify your PayPal account", 0.99, 1},
		{"You have a pending message!!", 0.6, 0.7},
	}
	for _, tt := range tests {
		cues := analyzeText(tt.subject, "")
		if cues.SubjectRisk < tt.min || cues.SubjectRisk > tt.max {
			t.Errorf("SubjectRisk(%q) = %v, want in [%v,%v]", tt.subject, cues.SubjectRisk, tt.min, tt.max)
		}
	}
}

func TestPhishingKeywordHits(t *testing.T) {
	cues := analyzeText("", "verify your account password now, click to confirm before it is suspended")
	if cues.PhishingKeywordHits < 5 {
		t.Errorf("Expected at least 5 keyword hits, got %d", cues.PhishingKeywordHits)
	}

	// Whole tokens only: "unlocked" must not count as "locked"
	none := analyzeText("", "all accounts remain unlocked")
	if none.PhishingKeywordHits != 0 {
		t.Errorf("Expected 0 hits for substrings, got %d", none.PhishingKeywordHits)
	}
}

func TestImpersonationLabels(t *testing.T) {
	cues := analyzeText("", "This is IT support from the help desk. Your bank requires confirmation.")

	want := map[string]bool{"it_support": true, "bank": true}
	for _, label := range cues.Impersonation {
		delete(want, label)
	}
	if len(want) != 0 {
		t.Errorf("Missing labels %v in %v", want, cues.Impersonation)
	}
}

func TestHighlights(t *testing.T) {
	text := "Your account has been suspended. " +
		"The weather is nice today. " +
		"Verify your password immediately. " +
		"We met at the conference. " +
		"Act now before your access is locked. " +
		"Unauthorized activity was detected on your account. " +
		"This sentence also mentions urgent action required."

	cues := analyzeText("", text)
	if len(cues.Highlights) == 0 {
		t.Fatal("Expected highlights")
	}
	if len(cues.Highlights) > 4 {
		t.Errorf("Highlights capped at 4, got %d", len(cues.Highlights))
	}
	for _, h := range cues.Highlights {
		if len(h) > 180 {
			t.Errorf("Highlight too long: %d chars", len(h))
		}
		if strings.Contains(h, "weather") || strings.Contains(h, "conference") {
			t.Errorf("Neutral sentence in highlights: %q", h)
		}
	}
}

func TestBenignText(t *testing.T) {
	cues := analyzeText("Lunch on Friday?", "Want to grab lunch at noon on Friday? The new place downtown looks good.")

	if cues.Urgency != 0 || cues.ThreatLanguage != 0 || cues.CredentialRequest != 0 {
		t.Errorf("Benign text scored cues: %+v", cues)
	}
	if cues.PhishingKeywordHits != 0 {
		t.Errorf("Benign text keyword hits: %d", cues.PhishingKeywordHits)
	}
	if len(cues.Highlights) != 0 {
		t.Errorf("Benign text highlights: %v", cues.Highlights)
	}
}
