// Package decode provides bounded decoding of obfuscated content: HTML
// entities, percent-encoding, base64 candidates and data URIs, plus a
// single-pass HTML compactor. Every operation runs under a Budget so hostile
// input cannot expand without limit.
package decode

import (
	"encoding/base64"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Budget caps the work a single decode pass may perform
type Budget struct {
	MaxInputChars    int
	MaxOutputChars   int
	MaxRounds        int
	MaxNestedURLs    int
	MaxBase64Input   int
	MaxBase64Output  int
	MaxDataURIOutput int
}

// DefaultBudget returns the standard decode budget
func DefaultBudget() Budget {
	return Budget{
		MaxInputChars:    65536,
		MaxOutputChars:   65536,
		MaxRounds:        3,
		MaxNestedURLs:    8,
		MaxBase64Input:   8192,
		MaxBase64Output:  8192,
		MaxDataURIOutput: 16384,
	}
}

// Decoder applies budget-bounded decoding
type Decoder struct {
	budget Budget
}

// NewDecoder creates a decoder with the given budget. Zero fields fall back
// to the defaults.
func NewDecoder(budget Budget) *Decoder {
	def := DefaultBudget()
	if budget.MaxInputChars <= 0 {
		budget.MaxInputChars = def.MaxInputChars
	}
	if budget.MaxOutputChars <= 0 {
		budget.MaxOutputChars = def.MaxOutputChars
	}
	if budget.MaxRounds <= 0 {
		budget.MaxRounds = def.MaxRounds
	}
	if budget.MaxNestedURLs <= 0 {
		budget.MaxNestedURLs = def.MaxNestedURLs
	}
	if budget.MaxBase64Input <= 0 {
		budget.MaxBase64Input = def.MaxBase64Input
	}
	if budget.MaxBase64Output <= 0 {
		budget.MaxBase64Output = def.MaxBase64Output
	}
	if budget.MaxDataURIOutput <= 0 {
		budget.MaxDataURIOutput = def.MaxDataURIOutput
	}
	return &Decoder{budget: budget}
}

// Budget returns the decoder's effective budget
func (d *Decoder) Budget() Budget {
	return d.budget
}

var (
	nestedURLPattern = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)
	base64Pattern    = regexp.MustCompile(`^[A-Za-z0-9+/_-]+={0,2}$`)
)

// Normalize unescapes HTML entities and percent-encoding round by round,
// stopping at the round cap or when a round is a no-op.
func (d *Decoder) Normalize(s string) string {
	if len(s) > d.budget.MaxInputChars {
		s = s[:d.budget.MaxInputChars]
	}

	for round := 0; round < d.budget.MaxRounds; round++ {
		next := html.UnescapeString(s)
		if unescaped, err := url.QueryUnescape(next); err == nil {
			next = unescaped
		}
		if len(next) > d.budget.MaxOutputChars {
			next = next[:d.budget.MaxOutputChars]
		}
		if next == s {
			break
		}
		s = next
	}
	return s
}

// DecodeBase64Candidate decodes s only when it matches the base64 character
// class and length band and the result is mostly printable.
func (d *Decoder) DecodeBase64Candidate(s string) (string, bool) {
	if len(s) < 16 || len(s) > d.budget.MaxBase64Input {
		return "", false
	}
	if !base64Pattern.MatchString(s) {
		return "", false
	}

	var decoded []byte
	var err error
	if strings.ContainsAny(s, "-_") {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	} else {
		decoded, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	if len(decoded) > d.budget.MaxBase64Output {
		decoded = decoded[:d.budget.MaxBase64Output]
	}

	text := string(decoded)
	if printableRatio(text) < 0.85 {
		return "", false
	}
	return text, true
}

// DataURIReport summarises one decoded data: URI
type DataURIReport struct {
	MediaType string `json:"media_type"`
	Decoded   string `json:"decoded,omitempty"`
	Truncated bool   `json:"truncated"`
}

// DecodeDataURI decodes a data: URI when its media type is textual
// (text/*, application/json, application/xml, *+xml), capping output size.
func (d *Decoder) DecodeDataURI(s string) (DataURIReport, bool) {
	if !strings.HasPrefix(s, "data:") {
		return DataURIReport{}, false
	}
	comma := strings.Index(s, ",")
	if comma < 0 {
		return DataURIReport{}, false
	}

	meta := s[len("data:"):comma]
	payload := s[comma+1:]
	isBase64 := strings.HasSuffix(meta, ";base64")
	mediaType := strings.TrimSuffix(meta, ";base64")
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if !textualMediaType(mediaType) {
		return DataURIReport{MediaType: mediaType}, false
	}

	var content string
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return DataURIReport{MediaType: mediaType}, false
		}
		content = string(decoded)
	} else {
		if unescaped, err := url.QueryUnescape(payload); err == nil {
			content = unescaped
		} else {
			content = payload
		}
	}

	report := DataURIReport{MediaType: mediaType, Decoded: content}
	if len(report.Decoded) > d.budget.MaxDataURIOutput {
		report.Decoded = report.Decoded[:d.budget.MaxDataURIOutput]
		report.Truncated = true
	}
	return report, true
}

func textualMediaType(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json" || mediaType == "application/xml":
		return true
	case strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	return false
}

// ExtractNestedURLs normalizes s, attempts base64 recovery of its tokens and
// returns the HTTP(S) URLs found inside, capped by the budget.
func (d *Decoder) ExtractNestedURLs(s string) []string {
	normalized := d.Normalize(s)

	corpus := normalized
	for _, token := range strings.FieldsFunc(normalized, func(r rune) bool {
		return r == '&' || r == '=' || r == '?' || r == ' ' || r == '\n'
	}) {
		if decoded, ok := d.DecodeBase64Candidate(token); ok {
			corpus += "\n" + decoded
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, u := range nestedURLPattern.FindAllString(corpus, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) >= d.budget.MaxNestedURLs {
			break
		}
	}
	return out
}

func printableRatio(s string) float64 {
	if s == "" {
		return 0
	}
	printable := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}
