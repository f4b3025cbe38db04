package decode

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// HTMLView is the compact single-pass summary of an HTML document. Script
// content is never evaluated.
type HTMLView struct {
	Title       string   `json:"title"`
	VisibleText []string `json:"visible_text"`

	Links           []string `json:"links"`
	ExternalScripts []string `json:"external_scripts"`
	FormActions     []string `json:"form_actions"`

	FormCount      int `json:"form_count"`
	PasswordFields int `json:"password_fields"`
	OTPFields      int `json:"otp_fields"`
	Iframes        int `json:"iframes"`
	ExternalLinks  int `json:"external_links"`

	MetaRefreshTargets []string        `json:"meta_refresh_targets"`
	DataURIs           []DataURIReport `json:"data_uris"`

	SuspiciousKeywords []string `json:"suspicious_keywords"`
	BrandHits          []string `json:"brand_hits"`

	// Bounded 0..100, derived from the features above
	ImpersonationScore int `json:"impersonation_score"`
}

const (
	maxTitleChars    = 160
	maxTextFragments = 200
	maxTextChars     = 16384
)

// Closed vocabularies for the compact view
var (
	compactorKeywords = []string{
		"verify", "password", "login", "sign in", "account", "security",
		"update your", "confirm", "billing", "credential", "expired",
	}
	compactorBrands = []string{
		"paypal", "microsoft", "apple", "google", "amazon", "netflix",
		"docusign", "dropbox", "office365", "outlook", "chase", "wells fargo",
	}
	otpFieldHints = []string{"otp", "one-time", "onetime", "2fa", "mfa", "verification-code", "verification_code", "security-code"}
)

// CompactHTML runs the single-pass compactor over an HTML document
func (d *Decoder) CompactHTML(src string) *HTMLView {
	if len(src) > d.budget.MaxInputChars {
		src = src[:d.budget.MaxInputChars]
	}

	view := &HTMLView{}
	tokenizer := html.NewTokenizer(strings.NewReader(src))

	var inTitle, inSkip bool
	var textChars int
	textHits := make(map[string]bool)

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "title":
				inTitle = true
			case "script", "style", "noscript":
				if tt == html.StartTagToken {
					inSkip = true
				}
				if src := attr(token, "src"); src != "" {
					view.ExternalScripts = append(view.ExternalScripts, src)
				}
			case "a":
				if href := attr(token, "href"); href != "" {
					d.recordLink(view, href)
				}
			case "form":
				view.FormCount++
				if action := attr(token, "action"); action != "" {
					view.FormActions = append(view.FormActions, action)
				}
			case "input":
				d.classifyInput(view, token)
			case "iframe":
				view.Iframes++
				if src := attr(token, "src"); src != "" {
					d.recordLink(view, src)
				}
			case "meta":
				if strings.EqualFold(attr(token, "http-equiv"), "refresh") {
					if target := refreshTarget(attr(token, "content")); target != "" {
						view.MetaRefreshTargets = append(view.MetaRefreshTargets, target)
					}
				}
			case "img":
				if src := attr(token, "src"); strings.HasPrefix(src, "data:") {
					if report, ok := d.DecodeDataURI(src); ok {
						view.DataURIs = append(view.DataURIs, report)
					}
				}
			}
		case html.EndTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "title":
				inTitle = false
			case "script", "style", "noscript":
				inSkip = false
			}
		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				if view.Title == "" {
					if len(text) > maxTitleChars {
						text = text[:maxTitleChars]
					}
					view.Title = text
				}
				continue
			}
			if inSkip {
				continue
			}
			if len(view.VisibleText) < maxTextFragments && textChars < maxTextChars {
				view.VisibleText = append(view.VisibleText, text)
				textChars += len(text)
			}
			lower := strings.ToLower(text)
			for _, kw := range compactorKeywords {
				if strings.Contains(lower, kw) {
					textHits["kw:"+kw] = true
				}
			}
			for _, brand := range compactorBrands {
				if strings.Contains(lower, brand) {
					textHits["brand:"+brand] = true
				}
			}
		}
	}

	for hit := range textHits {
		if strings.HasPrefix(hit, "kw:") {
			view.SuspiciousKeywords = append(view.SuspiciousKeywords, strings.TrimPrefix(hit, "kw:"))
		} else {
			view.BrandHits = append(view.BrandHits, strings.TrimPrefix(hit, "brand:"))
		}
	}
	sort.Strings(view.SuspiciousKeywords)
	sort.Strings(view.BrandHits)

	view.ImpersonationScore = impersonationScore(view)
	return view
}

func (d *Decoder) recordLink(view *HTMLView, href string) {
	if strings.HasPrefix(href, "data:") {
		if report, ok := d.DecodeDataURI(href); ok {
			view.DataURIs = append(view.DataURIs, report)
		}
		return
	}
	view.Links = append(view.Links, href)
	if u, err := url.Parse(href); err == nil && u.Host != "" {
		view.ExternalLinks++
	}
}

func (d *Decoder) classifyInput(view *HTMLView, token html.Token) {
	typ := strings.ToLower(attr(token, "type"))
	if typ == "password" {
		view.PasswordFields++
		return
	}

	descriptor := strings.ToLower(attr(token, "name") + " " + attr(token, "id") + " " + attr(token, "placeholder") + " " + attr(token, "autocomplete"))
	for _, hint := range otpFieldHints {
		if strings.Contains(descriptor, hint) {
			view.OTPFields++
			return
		}
	}
}

// impersonationScore combines compactor features into a bounded 0..100 score
func impersonationScore(view *HTMLView) int {
	score := 0
	if view.PasswordFields > 0 {
		score += 30
	}
	if view.OTPFields > 0 {
		score += 15
	}
	score += len(view.BrandHits) * 20
	score += len(view.SuspiciousKeywords) * 5
	score += len(view.MetaRefreshTargets) * 10
	score += view.Iframes * 5
	if view.FormCount > 0 && len(view.ExternalScripts) > 0 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

func attr(token html.Token, name string) string {
	for _, a := range token.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// refreshTarget extracts the url= part of a meta refresh content attribute
func refreshTarget(content string) string {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(content[idx+4:]), `"'`)
}
