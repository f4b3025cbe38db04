// Package urlrisk computes per-URL risk signals and domain intelligence:
// shortlink detection and expansion, punycode, brand typosquatting, login
// intent, query obfuscation and nested URL recovery.
package urlrisk

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/phishguard/phish-triage/pkg/decode"
	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/fetcher"
)

// Risk flags, closed vocabulary
const (
	FlagShortlink         = "shortlink"
	FlagBrandSpoof        = "brand-spoof"
	FlagLoginIntent       = "login-intent"
	FlagPunycode          = "punycode"
	FlagSuspiciousPattern = "suspicious-pattern"
	FlagExpansionFailed   = "expansion-failed"
	FlagEncodedQuery      = "encoded-query"
	FlagNestedURLParam    = "nested-url-param"
	FlagQueryRedirect     = "query-redirect"
)

// BrandMatch records a brand similarity hit
type BrandMatch struct {
	Brand      string  `json:"brand"`
	Similarity float64 `json:"similarity"`
}

// DomainReport is the domain-intel summary for one URL's host
type DomainReport struct {
	Domain     string   `json:"domain"`
	RiskScore  int      `json:"risk_score"` // 0..100
	Indicators []string `json:"indicators"`
}

// Signal is the per-URL risk signal
type Signal struct {
	URL              string        `json:"url"`
	Normalized       string        `json:"normalized"`
	IsShortlink      bool          `json:"is_shortlink"`
	ExpandedURL      string        `json:"expanded_url,omitempty"`
	RedirectChain    []string      `json:"redirect_chain,omitempty"`
	FinalDomain      string        `json:"final_domain"`
	IsPunycode       bool          `json:"is_punycode"`
	LooksLikeBrand   *BrandMatch   `json:"looks_like_brand,omitempty"`
	HasLoginKeywords bool          `json:"has_login_keywords"`
	RiskFlags        []string      `json:"risk_flags"`
	NestedURLs       []string      `json:"nested_urls,omitempty"`
	Domain           *DomainReport `json:"domain_report,omitempty"`
	Confidence       float64       `json:"confidence"`
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

// Closed lists
var (
	shortenerHosts = []string{
		"bit.ly", "tinyurl.com", "t.co", "goo.gl", "ow.ly", "is.gd",
		"buff.ly", "rb.gy", "cutt.ly", "tiny.cc", "short.link", "adf.ly",
		"rebrand.ly", "shorturl.at",
	}
	loginKeywords = []string{
		"/verify", "/login", "/account", "/secure", "/payment", "/billing",
		"/portal", "/reset", "/password", "confirm",
	}
	brandNames = []string{
		"paypal", "microsoft", "apple", "google", "amazon", "netflix",
		"facebook", "instagram", "linkedin", "dropbox", "docusign", "adobe",
		"chase", "wellsfargo", "bankofamerica", "coinbase", "binance",
		"office365", "outlook", "github",
	}
	riskyTLDs = []string{
		"xyz", "top", "club", "work", "click", "link", "gq", "tk", "ml",
		"cf", "ga", "icu", "rest", "zip", "mov",
	}
	trustTokens = []string{
		"secure", "verify", "login", "account", "support", "service",
		"update", "auth", "signin", "portal", "billing",
	}
	redirectParamKeys = map[string]bool{
		"u": true, "url": true, "redirect": true, "redirect_uri": true,
		"next": true, "goto": true, "dest": true, "destination": true,
		"target": true, "r": true, "link": true, "continue": true,
	}

	digitRunPattern    = regexp.MustCompile(`\d{4,}`)
	brandSuffixPattern = regexp.MustCompile(`^[a-z0-9-]{1,12}$`)
)

const (
	typosquatSimilarity     = 0.92
	embeddedBrandSimilarity = 0.74

	trustTokenWeight = 6
	trustTokenCap    = 18
	syntheticBonus   = 12
)

// Analyzer computes URL risk signals
type Analyzer struct {
	decoder *decode.Decoder
	fetcher *fetcher.Fetcher

	// Expand shortlinks through the safe fetcher (deep mode only)
	ExpandShortlinks bool
}

// NewAnalyzer creates a URL risk analyzer. The fetcher may be nil when
// shortlink expansion is disabled.
func NewAnalyzer(decoder *decode.Decoder, f *fetcher.Fetcher) *Analyzer {
	if decoder == nil {
		decoder = decode.NewDecoder(decode.DefaultBudget())
	}
	return &Analyzer{decoder: decoder, fetcher: f}
}

// Analyze computes signals for each URL in input order, deduplicated by URL
// string. Nested URLs recovered from query parameters are re-fed through the
// same analysis exactly one level deep.
func (a *Analyzer) Analyze(ctx context.Context, urls []string) []*Signal {
	signals := a.analyzeLevel(ctx, urls, true)

	// One nested level only, to avoid unbounded fan-out
	seen := make(map[string]bool, len(signals))
	for _, s := range signals {
		seen[s.URL] = true
	}
	var nested []string
	for _, s := range signals {
		for _, nu := range s.NestedURLs {
			c := email.CanonicalizeURL(nu)
			if c != "" && !seen[c] {
				seen[c] = true
				nested = append(nested, c)
			}
		}
	}
	if len(nested) > 0 {
		signals = append(signals, a.analyzeLevel(ctx, nested, false)...)
	}
	return signals
}

func (a *Analyzer) analyzeLevel(ctx context.Context, urls []string, extractNested bool) []*Signal {
	seen := make(map[string]bool)
	var signals []*Signal
	for _, raw := range urls {
		if raw == "" || seen[raw] {
			continue
		}
		seen[raw] = true
		signals = append(signals, a.analyzeOne(ctx, raw, extractNested))
	}
	return signals
}

func (a *Analyzer) analyzeOne(ctx context.Context, raw string, extractNested bool) *Signal {
	signal := &Signal{
		URL:        raw,
		Normalized: normalize(raw),
		RiskFlags:  []string{},
		Confidence: 0.9,
	}

	u, err := url.Parse(signal.Normalized)
	if err != nil || u.Host == "" {
		signal.Confidence = 0.2
		return signal
	}
	host := u.Hostname()
	signal.FinalDomain = host

	// Shortlink detection and optional expansion
	if isShortener(host) {
		signal.IsShortlink = true
		signal.addFlag(FlagShortlink)
		// A shortened destination is itself an obfuscation pattern
		signal.addFlag(FlagSuspiciousPattern)
		if a.ExpandShortlinks && a.fetcher != nil {
			a.expand(ctx, signal)
		}
	}

	if strings.Contains(host, "xn--") {
		signal.IsPunycode = true
		signal.addFlag(FlagPunycode)
	}

	pathAndQuery := strings.ToLower(u.Path + "?" + u.RawQuery)
	for _, kw := range loginKeywords {
		if strings.Contains(pathAndQuery, kw) {
			signal.HasLoginKeywords = true
			signal.addFlag(FlagLoginIntent)
			break
		}
	}

	if match := a.brandMatch(host); match != nil {
		signal.LooksLikeBrand = match
		signal.addFlag(FlagBrandSpoof)
	}

	if hostLooksSuspicious(host) {
		signal.addFlag(FlagSuspiciousPattern)
	}

	if extractNested {
		a.scanQuery(u, signal)
	}

	signal.Domain = a.domainReport(host, signal.IsPunycode, signal.LooksLikeBrand != nil)
	return signal
}

// expand resolves a shortlink through the safe fetcher with tightened caps
func (a *Analyzer) expand(ctx context.Context, signal *Signal) {
	policy := a.fetcher.Policy()
	policy.MaxBytes = 4096
	if policy.MaxRedirects > 4 {
		policy.MaxRedirects = 4
	}
	result := a.fetcher.WithPolicy(policy).Fetch(ctx, signal.Normalized)

	switch result.Outcome {
	case fetcher.OutcomeOK, fetcher.OutcomeHTTPError:
		if result.FinalURL != "" && result.FinalURL != signal.Normalized {
			signal.ExpandedURL = email.CanonicalizeURL(result.FinalURL)
			signal.RedirectChain = result.RedirectChain
			if signal.ExpandedURL != "" {
				if u, err := url.Parse(signal.ExpandedURL); err == nil {
					signal.FinalDomain = u.Hostname()
				}
			}
		}
	case fetcher.OutcomeSkipped:
		// Expansion disabled, not a failure
	default:
		signal.addFlag(FlagExpansionFailed)
		signal.Confidence = 0.6
	}
}

// scanQuery decodes query values under the decode budget and recovers nested
// URLs hidden in parameters.
func (a *Analyzer) scanQuery(u *url.URL, signal *Signal) {
	rawQuery := u.RawQuery
	if rawQuery == "" {
		return
	}

	decoded := a.decoder.Normalize(rawQuery)
	if decoded != rawQuery {
		signal.addFlag(FlagEncodedQuery)
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Fall back to one pass over the decoded blob
		for _, nu := range a.decoder.ExtractNestedURLs(rawQuery) {
			signal.NestedURLs = append(signal.NestedURLs, nu)
		}
		if len(signal.NestedURLs) > 0 {
			signal.addFlag(FlagNestedURLParam)
		}
		return
	}

	budget := a.decoder.Budget()
	for key, vals := range values {
		for _, val := range vals {
			for _, nu := range a.decoder.ExtractNestedURLs(val) {
				if len(signal.NestedURLs) >= budget.MaxNestedURLs {
					break
				}
				signal.NestedURLs = append(signal.NestedURLs, nu)
				signal.addFlag(FlagNestedURLParam)
				if redirectParamKeys[strings.ToLower(key)] {
					signal.addFlag(FlagQueryRedirect)
				}
			}
		}
	}
}

// brandMatch compares the registrable domain's first label against the brand
// list: Levenshtein distance 1 is a typosquat, brand prefix with a short
// suffix is the embedded-brand heuristic.
func (a *Analyzer) brandMatch(host string) *BrandMatch {
	label := baseLabel(host)
	if label == "" {
		return nil
	}
	// Compare the unicode form of punycode hosts
	if strings.HasPrefix(label, "xn--") {
		if decoded, err := idna.ToUnicode(label); err == nil {
			label = decoded
		}
	}

	for _, brand := range brandNames {
		if label == brand {
			// Exact brand label on its own registrable domain is the brand
			return nil
		}
	}
	for _, brand := range brandNames {
		if levenshtein(label, brand) == 1 {
			return &BrandMatch{Brand: brand, Similarity: typosquatSimilarity}
		}
		if strings.HasPrefix(label, brand) {
			suffix := strings.TrimLeft(label[len(brand):], "-")
			if suffix != "" && brandSuffixPattern.MatchString(suffix) {
				return &BrandMatch{Brand: brand, Similarity: embeddedBrandSimilarity}
			}
		}
	}
	return nil
}

// domainReport sums weighted indicators, capped at 100
func (a *Analyzer) domainReport(host string, punycode, typosquat bool) *DomainReport {
	report := &DomainReport{Domain: host, Indicators: []string{}}
	score := 0
	add := func(points int, indicator string) {
		score += points
		report.Indicators = append(report.Indicators, indicator)
	}

	if punycode {
		add(35, "punycode")
	}
	if hasRiskyTLD(host) {
		add(20, "risky-tld")
	}
	if digitRunPattern.MatchString(host) {
		add(8, "digit-run")
	}
	hyphens := strings.Count(host, "-")
	if hyphens >= 2 {
		add(10, "multi-hyphen")
	}
	if typosquat {
		add(30, "typosquat")
	}

	tokens := 0
	tokenPoints := 0
	for _, token := range trustTokens {
		if strings.Contains(host, token) {
			tokens++
			if tokenPoints < trustTokenCap {
				tokenPoints += trustTokenWeight
			}
		}
	}
	if tokenPoints > 0 {
		score += tokenPoints
		report.Indicators = append(report.Indicators, "trust-theme")
	}

	// Synthetic service pattern: hyphenated trust-theme host with length
	if hyphens >= 2 && tokens >= 2 && len(host) >= 20 {
		add(syntheticBonus, "synthetic-service")
	}

	if score > 100 {
		score = 100
	}
	report.RiskScore = score
	return report
}

func normalize(raw string) string {
	if c := email.CanonicalizeURL(raw); c != "" {
		return c
	}
	return strings.TrimSpace(raw)
}

func isShortener(host string) bool {
	host = strings.ToLower(host)
	for _, s := range shortenerHosts {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func hasRiskyTLD(host string) bool {
	idx := strings.LastIndex(host, ".")
	if idx < 0 {
		return false
	}
	tld := host[idx+1:]
	for _, risky := range riskyTLDs {
		if tld == risky {
			return true
		}
	}
	return false
}

func hostLooksSuspicious(host string) bool {
	return digitRunPattern.MatchString(host) ||
		strings.Count(host, "-") >= 2 ||
		hasRiskyTLD(host)
}

// baseLabel returns the first label of the registrable domain
func baseLabel(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	// Naive two-level public suffixes (co.uk and friends)
	secondLevel := map[string]bool{"co": true, "com": true, "org": true, "net": true, "gov": true, "ac": true}
	idx := len(labels) - 2
	if len(labels) >= 3 && secondLevel[labels[len(labels)-2]] && len(labels[len(labels)-1]) == 2 {
		idx = len(labels) - 3
	}
	return labels[idx]
}

func (s *Signal) addFlag(flag string) {
	for _, f := range s.RiskFlags {
		if f == flag {
			return
		}
	}
	s.RiskFlags = append(s.RiskFlags, flag)
}

// levenshtein computes edit distance with equal insert/delete/substitute costs
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
