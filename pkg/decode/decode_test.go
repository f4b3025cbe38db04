package decode

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNormalizeRounds(t *testing.T) {
	d := NewDecoder(DefaultBudget())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"percent encoded", "https%3A%2F%2Fexample.com", "https://example.com"},
		{"html entities", "a &amp; b", "a & b"},
		{"double encoded", "https%253A%252F%252Fx.test", "https://x.test"},
		{"plain passthrough", "hello world", "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeRoundCap(t *testing.T) {
	d := NewDecoder(Budget{MaxRounds: 1})

	// One round only: the double-encoded URL needs two
	got := d.Normalize("https%253A%252F%252Fx.test")
	if got == "https://x.test" {
		t.Error("Expected single round to leave one encoding layer")
	}
}

func TestDecodeBase64Candidate(t *testing.T) {
	d := NewDecoder(DefaultBudget())

	encoded := base64.StdEncoding.EncodeToString([]byte("https://hidden.example.com/path"))
	decoded, ok := d.DecodeBase64Candidate(encoded)
	if !ok {
		t.Fatal("Expected valid base64 candidate to decode")
	}
	if decoded != "https://hidden.example.com/path" {
		t.Errorf("Decoded %q", decoded)
	}

	rejects := []struct {
		name string
		in   string
	}{
		{"too short", "aGVsbG8="},
		{"bad charset", "not!!base64@@data$$here!!"},
		{"binary output", base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x0b, 0x0c, 0x0e, 0x0f, 0x10})},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := d.DecodeBase64Candidate(tt.in); ok {
				t.Errorf("Expected %q to be rejected", tt.in)
			}
		})
	}
}

func TestDecodeDataURI(t *testing.T) {
	d := NewDecoder(DefaultBudget())

	report, ok := d.DecodeDataURI("data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte("<b>hi</b>")))
	if !ok {
		t.Fatal("Expected textual data URI to decode")
	}
	if report.MediaType != "text/html" || report.Decoded != "<b>hi</b>" {
		t.Errorf("Unexpected report: %+v", report)
	}

	if _, ok := d.DecodeDataURI("data:image/png;base64,iVBORw0KGgo="); ok {
		t.Error("Binary media types must not decode")
	}
	if _, ok := d.DecodeDataURI("not-a-data-uri"); ok {
		t.Error("Non data: input must not decode")
	}
}

func TestExtractNestedURLs(t *testing.T) {
	d := NewDecoder(DefaultBudget())

	encoded := base64.StdEncoding.EncodeToString([]byte("go to https://nested.example.net/a now"))
	in := "u=https%3A%2F%2Fdirect.example.com%2Fx&payload=" + encoded

	urls := d.ExtractNestedURLs(in)
	if len(urls) < 2 {
		t.Fatalf("Expected direct and base64-nested URLs, got %v", urls)
	}

	joined := strings.Join(urls, " ")
	if !strings.Contains(joined, "https://direct.example.com/x") {
		t.Errorf("Missing percent-decoded URL in %v", urls)
	}
	if !strings.Contains(joined, "https://nested.example.net/a") {
		t.Errorf("Missing base64-recovered URL in %v", urls)
	}
}

func TestExtractNestedURLsCap(t *testing.T) {
	d := NewDecoder(Budget{MaxNestedURLs: 2})

	in := "https://a.test/1 https://b.test/2 https://c.test/3 https://d.test/4"
	urls := d.ExtractNestedURLs(in)
	if len(urls) != 2 {
		t.Errorf("Expected nested URL cap of 2, got %d", len(urls))
	}
}
