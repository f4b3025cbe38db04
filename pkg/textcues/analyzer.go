// Package textcues extracts purely pattern-based language signals from the
// message text: urgency, threats, payment pressure, credential requests and
// impersonation hints. No model calls, fully deterministic.
package textcues

import (
	"regexp"
	"strings"

	"github.com/phishguard/phish-triage/pkg/email"
)

// Cues are scalar language signals, each in [0,1]
type Cues struct {
	Urgency               float64 `json:"urgency"`
	ThreatLanguage        float64 `json:"threat_language"`
	PaymentOrGiftcard     float64 `json:"payment_or_giftcard"`
	CredentialRequest     float64 `json:"credential_request"`
	ActionRequest         float64 `json:"action_request"`
	AccountTakeoverIntent float64 `json:"account_takeover_intent"`
	SubjectRisk           float64 `json:"subject_risk"`

	PhishingKeywordHits int      `json:"phishing_keyword_hits"`
	Impersonation       []string `json:"impersonation"`
	Highlights          []string `json:"highlights"`
}

const (
	cueSaturationHits = 3.0
	maxHighlights     = 4
	maxHighlightChars = 180
)

var (
	urgencyPatterns = compileAll(
		`\burgent(ly)?\b`,
		`\bimmediate(ly)?\b`,
		`\bright away\b`,
		`\bwithin \d+ (hours?|days?|minutes?)\b`,
		`\bexpires? (today|soon|shortly)\b`,
		`\bact now\b`,
		`\blast (chance|warning|notice)\b`,
		`\bas soon as possible\b|\basap\b`,
		`\btime.?sensitive\b`,
	)
	threatPatterns = compileAll(
		`\b(account|access|service).{0,24}\b(suspend(ed)?|clos(ed|ure)|terminat(ed|ion)|lock(ed)?|restrict(ed)?|disabl(ed)?)\b`,
		`\b(suspend(ed)?|clos(ed|ure)|terminat(ed|ion)|lock(ed)?|deactivat(ed)?)\b.{0,24}\baccount\b`,
		`\blegal action\b`,
		`\bpermanent(ly)? (delet|los|remov)`,
		`\bunauthorized (access|activity|transaction)\b`,
		`\byour account (has been|will be)\b`,
		`\bfailure to comply\b`,
	)
	paymentPatterns = compileAll(
		`\bgift.?cards?\b`,
		`\bwire transfer\b`,
		`\b(bitcoin|btc|crypto(currency)?)\b`,
		`\binvoice (attached|due|overdue)\b`,
		`\bpayment (required|pending|failed|declined|overdue)\b`,
		`\b(update|confirm).{0,16}(billing|payment) (info|information|details|method)\b`,
		`\brefund\b`,
		`\bitunes\b|\bgoogle play card\b`,
	)
	credentialPatterns = compileAll(
		`\bverify (your )?(account|identity|email|password|information)\b`,
		`\b(confirm|update|validate) (your )?(credentials?|password|account|identity)\b`,
		`\b(enter|provide|submit) (your )?(password|credentials?|pin|ssn|social security)\b`,
		`\bre-?enter your\b`,
		`\blog ?in (to|and) (verify|confirm|secure)\b`,
		`\bpassword (expir|reset)`,
		`\bone.?time (code|passcode|password)\b|\botp\b`,
	)
	actionPatterns = compileAll(
		`\bclick (here|below|the link|this link)\b`,
		`\bopen (the )?attach(ed|ment)\b`,
		`\bfollow (the|this) link\b`,
		`\bdownload (the|your)\b`,
		`\baction required\b`,
		`\brespond (immediately|now|today)\b`,
		`\bcomplete (the|your) (form|verification)\b`,
	)
	takeoverPatterns = compileAll(
		`\bunusual (sign.?in|login|activity)\b`,
		`\bnew (sign.?in|login|device)\b`,
		`\bsign.?in attempt\b`,
		`\bsomeone (tried|attempted) to\b`,
		`\byour account was accessed\b`,
		`\bpassword was changed\b`,
		`\brecover(y)? (code|email|account)\b`,
		`\bsecurity alert\b`,
	)

	// Literal token list for phishing_keyword_hits
	phishingKeywords = []string{
		"verify", "suspended", "urgent", "password", "confirm", "click",
		"account", "security", "update", "login", "invoice", "expire",
		"unauthorized", "locked", "alert", "immediately",
	}

	impersonationLabels = []struct {
		substring string
		label     string
	}{
		{"it support", "it_support"},
		{"it department", "it_support"},
		{"help desk", "it_support"},
		{"helpdesk", "it_support"},
		{"human resources", "hr"},
		{"hr department", "hr"},
		{"payroll", "hr"},
		{"bank", "bank"},
		{"billing department", "billing"},
		{"billing team", "billing"},
		{"security team", "security_team"},
		{"account team", "security_team"},
		{"ceo", "executive"},
		{"chief executive", "executive"},
		{"customer support", "support"},
		{"customer service", "support"},
	}

	actionWordPattern  = regexp.MustCompile(`\b(verify|confirm|update|review|validate|unlock|reactivate)\b`)
	accountWordPattern = regexp.MustCompile(`\baccount\b`)
	brandWordPattern   = regexp.MustCompile(`\b(paypal|microsoft|apple|google|amazon|netflix|bank|office365|outlook)\b`)
	sentencePattern    = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// Analyzer extracts NLP cues
type Analyzer struct{}

// NewAnalyzer creates a text cue analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze computes all cues from subject, text and body
func (a *Analyzer) Analyze(input *email.EmailInput) *Cues {
	corpus := strings.ToLower(strings.Join([]string{input.Subject, input.Text, input.BodyText}, "\n"))

	cues := &Cues{
		Urgency:               saturate(countHits(urgencyPatterns, corpus)),
		ThreatLanguage:        saturate(countHits(threatPatterns, corpus)),
		PaymentOrGiftcard:     saturate(countHits(paymentPatterns, corpus)),
		CredentialRequest:     saturate(countHits(credentialPatterns, corpus)),
		ActionRequest:         saturate(countHits(actionPatterns, corpus)),
		AccountTakeoverIntent: saturate(countHits(takeoverPatterns, corpus)),
		Impersonation:         []string{},
		Highlights:            []string{},
	}

	cues.SubjectRisk = subjectRisk(strings.ToLower(input.Subject))
	cues.PhishingKeywordHits = keywordHits(corpus)
	cues.Impersonation = impersonation(corpus)
	cues.Highlights = highlights(input)

	return cues
}

// subjectRisk accumulates discrete points and normalizes by 3, capped at 1
func subjectRisk(subject string) float64 {
	if subject == "" {
		return 0
	}
	points := 0.0
	hasAccount := accountWordPattern.MatchString(subject)
	hasAction := actionWordPattern.MatchString(subject)

	if hasAccount && hasAction {
		points++
	}
	if strings.Contains(subject, "action required") {
		points++
	}
	if brandWordPattern.MatchString(subject) && hasAction {
		points++
	}
	if strings.Contains(subject, "pending message") {
		points++
	}
	if strings.Count(subject, "!") >= 2 {
		points++
	}

	risk := points / 3.0
	if risk > 1 {
		risk = 1
	}
	return risk
}

func keywordHits(corpus string) int {
	hits := 0
	for _, kw := range phishingKeywords {
		hits += countTokens(corpus, kw)
	}
	return hits
}

// countTokens counts whole-token occurrences of a literal keyword
func countTokens(corpus, keyword string) int {
	count := 0
	idx := 0
	for {
		pos := strings.Index(corpus[idx:], keyword)
		if pos < 0 {
			break
		}
		start := idx + pos
		end := start + len(keyword)
		beforeOK := start == 0 || !isWordChar(corpus[start-1])
		afterOK := end >= len(corpus) || !isWordChar(corpus[end])
		if beforeOK && afterOK {
			count++
		}
		idx = end
	}
	return count
}

func impersonation(corpus string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, entry := range impersonationLabels {
		if strings.Contains(corpus, entry.substring) && !seen[entry.label] {
			seen[entry.label] = true
			labels = append(labels, entry.label)
		}
	}
	if labels == nil {
		labels = []string{}
	}
	return labels
}

// highlights extracts up to 4 short sentences matching urgency, threat or
// credential patterns, preserving input order.
func highlights(input *email.EmailInput) []string {
	source := strings.Join([]string{input.Subject, input.Text}, "\n")
	out := []string{}
	for _, raw := range sentencePattern.FindAllString(source, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" || len(sentence) > maxHighlightChars {
			continue
		}
		lower := strings.ToLower(sentence)
		if matchesAny(urgencyPatterns, lower) || matchesAny(threatPatterns, lower) || matchesAny(credentialPatterns, lower) {
			out = append(out, sentence)
			if len(out) >= maxHighlights {
				break
			}
		}
	}
	return out
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func countHits(patterns []*regexp.Regexp, corpus string) int {
	hits := 0
	for _, p := range patterns {
		hits += len(p.FindAllString(corpus, -1))
	}
	return hits
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func saturate(hits int) float64 {
	v := float64(hits) / cueSaturationHits
	if v > 1 {
		v = 1
	}
	return v
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
