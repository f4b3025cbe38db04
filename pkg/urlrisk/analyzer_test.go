package urlrisk

import (
	"context"
	"testing"
)

func analyzeOneURL(t *testing.T, raw string) *Signal {
	t.Helper()
	signals := NewAnalyzer(nil, nil).Analyze(context.Background(), []string{raw})
	if len(signals) == 0 {
		t.Fatalf("No signal for %s", raw)
	}
	return signals[0]
}

func TestShortlinkFlags(t *testing.T) {
	signal := analyzeOneURL(t, "https://bit.ly/reset")

	for _, flag := range []string{FlagShortlink, FlagLoginIntent, FlagSuspiciousPattern} {
		if !signal.HasFlag(flag) {
			t.Errorf("Expected flag %s, got %v", flag, signal.RiskFlags)
		}
	}
	if !signal.IsShortlink {
		t.Error("Expected is_shortlink")
	}
}

func TestPunycodeDetection(t *testing.T) {
	signal := analyzeOneURL(t, "https://xn--pypal-4ve.com/login")

	if !signal.IsPunycode || !signal.HasFlag(FlagPunycode) {
		t.Errorf("Expected punycode detection, flags %v", signal.RiskFlags)
	}
	if signal.Domain == nil || signal.Domain.RiskScore < 35 {
		t.Errorf("Expected punycode weight in domain report, got %+v", signal.Domain)
	}
}

func TestBrandTyposquat(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		brand      string
		similarity float64
	}{
		{"digit substitution", "https://paypa1.com/verify", "paypal", 0.92},
		{"zero for o", "https://micros0ft.com/", "microsoft", 0.92},
		{"embedded brand", "https://paypal-billing.net/", "paypal", 0.74},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := analyzeOneURL(t, tt.url)
			if signal.LooksLikeBrand == nil {
				t.Fatalf("Expected brand match, flags %v", signal.RiskFlags)
			}
			if signal.LooksLikeBrand.Brand != tt.brand {
				t.Errorf("Brand = %s, want %s", signal.LooksLikeBrand.Brand, tt.brand)
			}
			if signal.LooksLikeBrand.Similarity != tt.similarity {
				t.Errorf("Similarity = %v, want %v", signal.LooksLikeBrand.Similarity, tt.similarity)
			}
			if !signal.HasFlag(FlagBrandSpoof) {
				t.Error("Expected brand-spoof flag")
			}
		})
	}
}

func TestExactBrandNotSpoof(t *testing.T) {
	signal := analyzeOneURL(t, "https://paypal.com/signin")
	if signal.LooksLikeBrand != nil {
		t.Errorf("Exact brand domain must not match as spoof: %+v", signal.LooksLikeBrand)
	}
}

func TestLoginIntent(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/verify", true},
		{"https://example.com/account/settings", true},
		{"https://example.com/secure?confirm=1", true},
		{"https://example.com/blog/post", false},
	}
	for _, tt := range tests {
		signal := analyzeOneURL(t, tt.url)
		if signal.HasLoginKeywords != tt.want {
			t.Errorf("HasLoginKeywords(%s) = %v, want %v", tt.url, signal.HasLoginKeywords, tt.want)
		}
	}
}

func TestNestedURLInQuery(t *testing.T) {
	signals := NewAnalyzer(nil, nil).Analyze(context.Background(),
		[]string{"https://redirector.test/go?url=https%3A%2F%2Fevil.example.net%2Flogin"})

	parent := signals[0]
	if !parent.HasFlag(FlagNestedURLParam) {
		t.Errorf("Expected nested-url-param, got %v", parent.RiskFlags)
	}
	if !parent.HasFlag(FlagQueryRedirect) {
		t.Errorf("Expected query-redirect for url= key, got %v", parent.RiskFlags)
	}
	if len(parent.NestedURLs) == 0 {
		t.Fatal("Expected recovered nested URLs")
	}

	// The nested URL is re-analyzed exactly one level deep
	if len(signals) < 2 {
		t.Fatalf("Expected nested signal, got %d signals", len(signals))
	}
	nested := signals[len(signals)-1]
	if nested.FinalDomain != "evil.example.net" {
		t.Errorf("Nested domain = %s", nested.FinalDomain)
	}
	if !nested.HasLoginKeywords {
		t.Error("Expected login intent on nested URL")
	}
}

func TestDomainReportScoring(t *testing.T) {
	tests := []struct {
		name string
		url  string
		min  int
		max  int
	}{
		{"plain domain", "https://example.com/", 0, 0},
		{"risky tld", "https://example.xyz/", 20, 20},
		{"digit run", "https://mail12345.com/", 8, 8},
		{"synthetic service host", "https://secure-login-verify-account.xyz/", 40, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := analyzeOneURL(t, tt.url)
			if signal.Domain == nil {
				t.Fatal("Expected domain report")
			}
			score := signal.Domain.RiskScore
			if score < tt.min || score > tt.max {
				t.Errorf("RiskScore = %d, want in [%d,%d]", score, tt.min, tt.max)
			}
		})
	}
}

func TestDomainReportCap(t *testing.T) {
	// Stack every indicator; the score must stay clipped at 100
	signal := analyzeOneURL(t, "https://xn--secure-verify-login-account-12345-billing.tk/")
	if signal.Domain.RiskScore > 100 {
		t.Errorf("RiskScore = %d exceeds cap", signal.Domain.RiskScore)
	}
}

func TestOrderPreservedAndDeduplicated(t *testing.T) {
	urls := []string{
		"https://a.test/1",
		"https://b.test/2",
		"https://a.test/1",
		"https://c.test/3",
	}
	signals := NewAnalyzer(nil, nil).Analyze(context.Background(), urls)

	if len(signals) != 3 {
		t.Fatalf("Expected 3 deduplicated signals, got %d", len(signals))
	}
	want := []string{"https://a.test/1", "https://b.test/2", "https://c.test/3"}
	for i, w := range want {
		if signals[i].URL != w {
			t.Errorf("signals[%d].URL = %s, want %s", i, signals[i].URL, w)
		}
	}
}

func TestEncodedQueryFlag(t *testing.T) {
	signal := analyzeOneURL(t, "https://example.com/page?data=%68%65%6C%6C%6F")
	if !signal.HasFlag(FlagEncodedQuery) {
		t.Errorf("Expected encoded-query, got %v", signal.RiskFlags)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"paypal", "paypa1", 1},
		{"paypal", "paypal", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
