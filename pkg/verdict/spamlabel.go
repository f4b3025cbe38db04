package verdict

import (
	"strings"

	"github.com/phishguard/phish-triage/pkg/config"
	"github.com/phishguard/phish-triage/pkg/email"
)

// Email labels, independent of the binary phishing verdict
const (
	LabelBenign     = "benign"
	LabelSpam       = "spam"
	LabelPhishEmail = "phish_email"
)

// SpamLabel is the promotional/phish classification of the message text
type SpamLabel struct {
	EmailLabel   string `json:"email_label"`
	IsSpam       bool   `json:"is_spam"`
	IsPhishEmail bool   `json:"is_phish_email"`
	SpamScore    int    `json:"spam_score"`
}

const maxSpamScore = 10

// DeriveSpamLabel scores promotional keyword tiers over the message text and
// combines with the deterministic score and final verdict.
func DeriveSpamLabel(keywords config.KeywordLists, input *email.EmailInput, finalVerdict string, deterministic int, suspiciousMax int) SpamLabel {
	corpus := strings.ToLower(strings.Join([]string{input.Subject, input.Text}, "\n"))

	score := 0
	score += 3 * countKeywords(corpus, keywords.HighRisk)
	score += 2 * countKeywords(corpus, keywords.MediumRisk)
	score += countKeywords(corpus, keywords.LowRisk)
	if score > maxSpamScore {
		score = maxSpamScore
	}

	label := SpamLabel{SpamScore: score}
	label.IsPhishEmail = finalVerdict == Phishing || deterministic > suspiciousMax
	label.IsSpam = label.IsPhishEmail || score >= 2

	switch {
	case label.IsPhishEmail:
		label.EmailLabel = LabelPhishEmail
	case label.IsSpam:
		label.EmailLabel = LabelSpam
	default:
		label.EmailLabel = LabelBenign
	}
	return label
}

func countKeywords(corpus string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		count += strings.Count(corpus, strings.ToLower(kw))
	}
	return count
}
