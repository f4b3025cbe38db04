package email

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"os"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// EmailInput is the canonical normalized message. It is created once by the
// parser and immutable thereafter.
type EmailInput struct {
	MessageID  string            `json:"message_id"`
	Date       string            `json:"date"`
	Subject    string            `json:"subject"`
	Sender     string            `json:"sender"`
	ReplyTo    string            `json:"reply_to"`
	ReturnPath string            `json:"return_path"`
	To         []string          `json:"to"`
	Cc         []string          `json:"cc"`
	Headers    map[string]string `json:"headers"`
	HeadersRaw string            `json:"headers_raw"`
	BodyText   string            `json:"body_text"`
	BodyHTML   string            `json:"body_html"`

	// Canonical analysis text; falls back to body_text then body_html
	Text string `json:"text"`

	URLs             []string          `json:"urls"`
	Attachments      []Attachment      `json:"attachments"`
	AttachmentHashes map[string]string `json:"attachment_hashes"`

	// Multi-signal chain flags computed at parse time
	Flags ChainFlags `json:"chain_flags"`
}

// Attachment keeps an attachment by filename with an optional content path
type Attachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
}

// ChainFlags capture multi-signal patterns observed during parsing
type ChainFlags struct {
	ContainsURL          bool `json:"contains_url"`
	ContainsAttachment   bool `json:"contains_attachment"`
	HTMLActiveContent    bool `json:"html_active_content"`
	URLToAttachmentChain bool `json:"url_to_attachment_chain"`
	HiddenHTMLLinks      bool `json:"hidden_html_links"`
}

// IsEmpty reports whether the message carries nothing to analyze
func (e *EmailInput) IsEmpty() bool {
	return e.Text == "" && len(e.URLs) == 0 && len(e.Attachments) == 0
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)
	anchorPattern = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']?(https?://[^"'\s>]+)["']?[^>]*>(.*?)</a>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Parser normalizes raw text, JSON payloads and MIME messages into EmailInput
type Parser struct{}

// NewParser creates a new input parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse accepts a single string and dispatches on its shape: a JSON object is
// a structured payload, a message with Subject: and From:/To: in its first
// header block is an .eml, anything else is plain text. Malformed input is
// never fatal; only I/O on a referenced eml_path can return an error.
func (p *Parser) Parse(raw string) (*EmailInput, error) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var payload jsonPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			return p.parsePayload(&payload)
		}
		// Malformed JSON degrades to plain text
	}

	if looksLikeMIME(raw) {
		input := p.parseEML(raw)
		p.finalize(input)
		return input, nil
	}

	input := p.parsePlainText(raw)
	p.finalize(input)
	return input, nil
}

// jsonPayload is the structured input shape. Field names match EmailInput's
// JSON tags so that a serialized EmailInput re-parses to itself.
type jsonPayload struct {
	EML     string `json:"eml"`
	EMLPath string `json:"eml_path"`

	MessageID        string            `json:"message_id"`
	Date             string            `json:"date"`
	Subject          string            `json:"subject"`
	Sender           string            `json:"sender"`
	ReplyTo          string            `json:"reply_to"`
	ReturnPath       string            `json:"return_path"`
	To               []string          `json:"to"`
	Cc               []string          `json:"cc"`
	Headers          map[string]string `json:"headers"`
	HeadersRaw       string            `json:"headers_raw"`
	BodyText         string            `json:"body_text"`
	BodyHTML         string            `json:"body_html"`
	Text             string            `json:"text"`
	URLs             []string          `json:"urls"`
	Attachments      json.RawMessage   `json:"attachments"`
	AttachmentHashes map[string]string `json:"attachment_hashes"`
}

func (p *Parser) parsePayload(payload *jsonPayload) (*EmailInput, error) {
	var input *EmailInput

	// An embedded or referenced .eml supersedes the payload's own fields
	switch {
	case payload.EML != "":
		input = p.parseEML(payload.EML)
	case payload.EMLPath != "":
		data, err := os.ReadFile(payload.EMLPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read eml_path: %w", err)
		}
		input = p.parseEML(string(data))
	default:
		input = newEmailInput()
	}

	// Explicit payload fields overlay the parsed result
	if payload.MessageID != "" {
		input.MessageID = payload.MessageID
	}
	if payload.Date != "" {
		input.Date = payload.Date
	}
	if payload.Subject != "" {
		input.Subject = payload.Subject
	}
	if payload.Sender != "" {
		input.Sender = payload.Sender
	}
	if payload.ReplyTo != "" {
		input.ReplyTo = payload.ReplyTo
	}
	if payload.ReturnPath != "" {
		input.ReturnPath = payload.ReturnPath
	}
	if len(payload.To) > 0 {
		input.To = dedupeStrings(payload.To)
	}
	if len(payload.Cc) > 0 {
		input.Cc = dedupeStrings(payload.Cc)
	}
	for name, value := range payload.Headers {
		input.Headers[strings.ToLower(name)] = value
	}
	if payload.HeadersRaw != "" {
		input.HeadersRaw = payload.HeadersRaw
	}
	if payload.BodyText != "" {
		input.BodyText = payload.BodyText
	}
	if payload.BodyHTML != "" {
		input.BodyHTML = payload.BodyHTML
	}
	if payload.Text != "" {
		input.Text = payload.Text
	}
	for _, u := range payload.URLs {
		input.URLs = append(input.URLs, u)
	}
	for _, att := range parseAttachmentList(payload.Attachments) {
		input.Attachments = append(input.Attachments, att)
	}
	for name, sum := range payload.AttachmentHashes {
		input.AttachmentHashes[name] = sum
	}

	p.finalize(input)
	return input, nil
}

// parseAttachmentList accepts either a list of filenames or a list of
// {filename, path} objects.
func parseAttachmentList(raw json.RawMessage) []Attachment {
	if len(raw) == 0 {
		return nil
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		out := make([]Attachment, 0, len(names))
		for _, name := range names {
			if name != "" {
				out = append(out, Attachment{Filename: name})
			}
		}
		return out
	}

	var objs []Attachment
	if err := json.Unmarshal(raw, &objs); err == nil {
		out := make([]Attachment, 0, len(objs))
		for _, att := range objs {
			if att.Filename != "" {
				out = append(out, att)
			}
		}
		return out
	}

	return nil
}

// looksLikeMIME checks the first header block for Subject: plus From: or To:
func looksLikeMIME(raw string) bool {
	headerBlock := raw
	if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		headerBlock = raw[:idx]
	} else if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		headerBlock = raw[:idx]
	}

	lower := strings.ToLower(headerBlock)
	hasSubject := false
	hasAddress := false
	for _, line := range strings.Split(lower, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "subject:") {
			hasSubject = true
		}
		if strings.HasPrefix(line, "from:") || strings.HasPrefix(line, "to:") {
			hasAddress = true
		}
	}
	return hasSubject && hasAddress
}

// parseEML parses a MIME message, extracting all non-attachment text/plain
// and text/html parts plus attachment names and content hashes.
func (p *Parser) parseEML(raw string) *EmailInput {
	input := newEmailInput()

	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		input.HeadersRaw = raw[:idx]
	} else if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		input.HeadersRaw = raw[:idx]
	} else {
		input.HeadersRaw = raw
	}

	mr, err := gomail.CreateReader(strings.NewReader(raw))
	if err != nil {
		// Degrade to a header-only parse via net/mail, then plain text
		if msg, merr := mail.ReadMessage(strings.NewReader(raw)); merr == nil {
			p.fillFromNetMail(input, msg)
			return input
		}
		return p.parsePlainText(raw)
	}

	header := mr.Header
	input.Subject, _ = header.Subject()
	input.Date = header.Get("Date")
	input.MessageID = strings.Trim(header.Get("Message-Id"), "<>")
	input.Sender = firstAddress(header.Get("From"))
	input.ReplyTo = firstAddress(header.Get("Reply-To"))
	input.ReturnPath = strings.Trim(header.Get("Return-Path"), "<>")
	input.To = parseAddressList(header.Get("To"))
	input.Cc = parseAddressList(header.Get("Cc"))

	fields := header.Fields()
	for fields.Next() {
		name := strings.ToLower(fields.Key())
		value, _ := fields.Text()
		if prev, ok := input.Headers[name]; ok {
			input.Headers[name] = prev + "\n" + value
		} else {
			input.Headers[name] = value
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// go-message surfaces unknown charsets as recoverable errors
			if gomessage.IsUnknownCharset(err) {
				continue
			}
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			ctype, _, _ := h.ContentType()
			body, rerr := io.ReadAll(part.Body)
			if rerr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ctype, "text/html"):
				appendText(&input.BodyHTML, string(body))
			case strings.HasPrefix(ctype, "text/"):
				appendText(&input.BodyText, string(body))
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			input.Attachments = append(input.Attachments, Attachment{Filename: filename})
			if body, rerr := io.ReadAll(part.Body); rerr == nil {
				sum := sha256.Sum256(body)
				input.AttachmentHashes[filename] = hex.EncodeToString(sum[:])
			}
		}
	}

	return input
}

// fillFromNetMail is the degraded header-only path for messages go-message
// refuses to read.
func (p *Parser) fillFromNetMail(input *EmailInput, msg *mail.Message) {
	input.Subject = msg.Header.Get("Subject")
	input.Date = msg.Header.Get("Date")
	input.MessageID = strings.Trim(msg.Header.Get("Message-Id"), "<>")
	input.Sender = firstAddress(msg.Header.Get("From"))
	input.ReplyTo = firstAddress(msg.Header.Get("Reply-To"))
	input.ReturnPath = strings.Trim(msg.Header.Get("Return-Path"), "<>")
	input.To = parseAddressList(msg.Header.Get("To"))
	input.Cc = parseAddressList(msg.Header.Get("Cc"))

	for key, values := range msg.Header {
		input.Headers[strings.ToLower(key)] = strings.Join(values, "\n")
	}

	if body, err := io.ReadAll(msg.Body); err == nil {
		input.BodyText = string(body)
	}
}

// parsePlainText treats the input as loose text with an optional leading
// Subject: line.
func (p *Parser) parsePlainText(raw string) *EmailInput {
	input := newEmailInput()

	body := raw
	trimmed := strings.TrimLeft(raw, "\r\n ")
	if strings.HasPrefix(strings.ToLower(trimmed), "subject:") {
		lines := strings.SplitN(trimmed, "\n", 2)
		input.Subject = strings.TrimSpace(lines[0][len("Subject:"):])
		if len(lines) > 1 {
			body = lines[1]
		} else {
			body = ""
		}
	}

	input.BodyText = strings.TrimSpace(body)
	return input
}

// finalize resolves the text fallback, extracts and canonicalizes URLs and
// computes the chain flags.
func (p *Parser) finalize(input *EmailInput) {
	if input.Text == "" {
		if input.BodyText != "" {
			input.Text = input.BodyText
		} else if input.BodyHTML != "" {
			input.Text = input.BodyHTML
		}
	}

	if input.MessageID == "" && !input.IsEmpty() {
		input.MessageID = uuid.NewString()
	}

	// URLs come from the analysis text, the HTML body and its anchors,
	// merged with anything the payload supplied, in order.
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		c := CanonicalizeURL(u)
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		urls = append(urls, c)
	}

	for _, u := range input.URLs {
		add(u)
	}
	for _, u := range urlPattern.FindAllString(input.Text, -1) {
		add(strings.TrimRight(u, ".,;:!?"))
	}
	for _, u := range urlPattern.FindAllString(input.BodyHTML, -1) {
		add(strings.TrimRight(u, ".,;:!?"))
	}

	hidden := false
	for _, m := range anchorPattern.FindAllStringSubmatch(input.BodyHTML, -1) {
		href := m[1]
		add(href)

		// Hidden link: the visible anchor text names a different host
		visible := tagPattern.ReplaceAllString(m[2], "")
		for _, vu := range urlPattern.FindAllString(visible, -1) {
			if hostOf(vu) != "" && hostOf(vu) != hostOf(href) {
				hidden = true
			}
		}
	}
	input.URLs = urls

	lowerHTML := strings.ToLower(input.BodyHTML)
	input.Flags = ChainFlags{
		ContainsURL:        len(input.URLs) > 0,
		ContainsAttachment: len(input.Attachments) > 0,
		HTMLActiveContent:  strings.Contains(lowerHTML, "<form") || strings.Contains(lowerHTML, "<iframe"),
		HiddenHTMLLinks:    hidden,
	}
	input.Flags.URLToAttachmentChain = input.Flags.ContainsURL && input.Flags.ContainsAttachment
}

// CanonicalizeURL lowercases the scheme and host, preserving the rest.
// Canonicalization is idempotent.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func firstAddress(value string) string {
	if value == "" {
		return ""
	}
	if addrs, err := mail.ParseAddressList(value); err == nil && len(addrs) > 0 {
		return addrs[0].Address
	}
	// Fall back to angle-bracket extraction
	if start := strings.Index(value, "<"); start >= 0 {
		if end := strings.Index(value[start:], ">"); end > 0 {
			return strings.TrimSpace(value[start+1 : start+end])
		}
	}
	return strings.TrimSpace(value)
}

func parseAddressList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	if addrs, err := mail.ParseAddressList(value); err == nil {
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	} else {
		for _, part := range strings.Split(value, ",") {
			if addr := firstAddress(part); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return dedupeStrings(out)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func appendText(dst *string, text string) {
	if *dst == "" {
		*dst = text
	} else {
		*dst += "\n" + text
	}
}

func newEmailInput() *EmailInput {
	return &EmailInput{
		Headers:          make(map[string]string),
		AttachmentHashes: make(map[string]string),
	}
}

// SenderDomain returns the lowercased domain of the sender address
func (e *EmailInput) SenderDomain() string {
	parts := strings.Split(e.Sender, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return ""
}
