// Package attachments performs static attachment analysis. The surface pass
// classifies by filename alone; the deep pass reads a bounded prefix of the
// content, detects the real file type from magic bytes and runs a per-type
// extractor. Nothing here executes attachment content.
package attachments

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phishguard/phish-triage/pkg/decode"
	"github.com/phishguard/phish-triage/pkg/email"
)

// Risk flags, closed vocabulary
const (
	FlagArchive           = "archive"
	FlagExecutableLike    = "executable-like"
	FlagMacroSuspected    = "macro-suspected"
	FlagHighRiskExtension = "high-risk-extension"
	FlagExtensionMismatch = "extension-mismatch"
)

// Surface risk classes
const (
	ClassLowRisk   = "low_risk"
	ClassMacroRisk = "macro_risk"
	ClassHighRisk  = "high_risk"
)

// Detected content types
const (
	TypePDF     = "pdf"
	TypeZIP     = "zip"
	TypeOOXML   = "ooxml"
	TypeOLE     = "ole"
	TypeHTML    = "html"
	TypeImage   = "image"
	TypeAudio   = "audio"
	TypeUnknown = ""
)

// Signal is the per-attachment static scan result
type Signal struct {
	Filename          string   `json:"filename"`
	MIME              string   `json:"mime,omitempty"`
	Size              int64    `json:"size"`
	RiskClass         string   `json:"risk_class"`
	ExtensionMismatch bool     `json:"extension_mismatch"`
	IsArchive         bool     `json:"is_archive"`
	IsExecutableLike  bool     `json:"is_executable_like"`
	MacroSuspected    bool     `json:"macro_suspected"`
	RiskFlags         []string `json:"risk_flags"`
	Confidence        float64  `json:"confidence"`

	// Populated by the deep pass only
	Deep *DeepReport `json:"deep,omitempty"`
}

// DeepReport is the content-level analysis of one attachment
type DeepReport struct {
	DetectedType   string   `json:"detected_type"`
	HasJavaScript  bool     `json:"has_javascript,omitempty"`
	HasAcroForm    bool     `json:"has_acroform,omitempty"`
	MacroSuspected bool     `json:"macro_suspected,omitempty"`
	EmbeddedURLs   []string `json:"embedded_urls,omitempty"`
	BrandHits      []string `json:"brand_hits,omitempty"`
	OCRText        string   `json:"ocr_text,omitempty"`
	Transcript     string   `json:"transcript,omitempty"`
	Notes          []string `json:"notes,omitempty"`
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

// Capability is an external bounded extractor (OCR, QR decode, ASR): given a
// file path it returns bounded text or an error.
type Capability func(ctx context.Context, path string) (string, error)

// Config controls the scanner
type Config struct {
	MaxReadBytes int64

	EnableOCR                bool
	EnableQRDecode           bool
	EnableAudioTranscription bool

	OCR        Capability
	QRDecode   Capability
	Transcribe Capability
}

// DefaultConfig returns the standard scanner configuration
func DefaultConfig() Config {
	return Config{MaxReadBytes: 4 << 20}
}

var (
	highRiskExtensions = map[string]bool{
		".exe": true, ".scr": true, ".bat": true, ".com": true, ".pif": true,
		".vbs": true, ".js": true, ".jse": true, ".wsf": true, ".hta": true,
		".cpl": true, ".jar": true, ".msi": true, ".ps1": true, ".cmd": true,
		".dll": true,
	}
	macroRiskExtensions = map[string]bool{
		".doc": true, ".xls": true, ".ppt": true, ".docm": true,
		".xlsm": true, ".pptm": true, ".dotm": true, ".xltm": true,
	}
	archiveExtensions = map[string]bool{
		".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
		".iso": true, ".img": true,
	}

	// Expected suffixes per detected content type
	expectedSuffixes = map[string]map[string]bool{
		TypePDF: {".pdf": true},
		TypeZIP: {".zip": true, ".jar": true},
		TypeOOXML: {
			".docx": true, ".xlsx": true, ".pptx": true, ".docm": true,
			".xlsm": true, ".pptm": true, ".dotm": true, ".xltm": true,
		},
		TypeOLE: {".doc": true, ".xls": true, ".ppt": true, ".msi": true},
		TypeHTML: {
			".html": true, ".htm": true, ".xhtml": true, ".svg": true,
		},
		TypeImage: {
			".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
			".bmp": true, ".webp": true,
		},
		TypeAudio: {
			".mp3": true, ".wav": true, ".ogg": true, ".m4a": true,
		},
	}

	urlInContentPattern = regexp.MustCompile(`https?://[^\s"'<>\)\]\\]+`)
	attachBrands        = []string{
		"paypal", "microsoft", "apple", "google", "amazon", "netflix",
		"docusign", "chase", "outlook",
	}
)

// Scanner performs attachment static scans
type Scanner struct {
	config  Config
	decoder *decode.Decoder
}

// NewScanner creates an attachment scanner
func NewScanner(config Config, decoder *decode.Decoder) *Scanner {
	if config.MaxReadBytes <= 0 {
		config.MaxReadBytes = DefaultConfig().MaxReadBytes
	}
	if decoder == nil {
		decoder = decode.NewDecoder(decode.DefaultBudget())
	}
	return &Scanner{config: config, decoder: decoder}
}

// ScanSurface classifies attachments by filename and suffix alone
func (s *Scanner) ScanSurface(input *email.EmailInput) []Signal {
	signals := make([]Signal, 0, len(input.Attachments))
	for _, att := range input.Attachments {
		signals = append(signals, s.surfaceOne(att))
	}
	return signals
}

func (s *Scanner) surfaceOne(att email.Attachment) Signal {
	signal := Signal{
		Filename:   att.Filename,
		RiskClass:  ClassLowRisk,
		RiskFlags:  []string{},
		Confidence: 0.8,
	}

	ext := strings.ToLower(filepath.Ext(att.Filename))
	switch {
	case highRiskExtensions[ext]:
		signal.RiskClass = ClassHighRisk
		signal.IsExecutableLike = true
		signal.addFlag(FlagExecutableLike)
		signal.addFlag(FlagHighRiskExtension)
	case macroRiskExtensions[ext]:
		signal.RiskClass = ClassMacroRisk
		signal.MacroSuspected = true
		signal.addFlag(FlagMacroSuspected)
	case archiveExtensions[ext]:
		signal.IsArchive = true
		signal.addFlag(FlagArchive)
	}

	// Double extension such as invoice.pdf.exe
	if signal.IsExecutableLike {
		base := strings.TrimSuffix(att.Filename, ext)
		if inner := strings.ToLower(filepath.Ext(base)); inner != "" && !highRiskExtensions[inner] {
			signal.ExtensionMismatch = true
			signal.addFlag(FlagExtensionMismatch)
		}
	}

	return signal
}

// ScanDeep re-scans surface signals against a bounded read of the content.
// Attachments without a content path keep their surface signal.
func (s *Scanner) ScanDeep(ctx context.Context, input *email.EmailInput, surface []Signal) []Signal {
	out := make([]Signal, len(surface))
	copy(out, surface)

	pathByName := make(map[string]string)
	for _, att := range input.Attachments {
		if att.Path != "" {
			pathByName[att.Filename] = att.Path
		}
	}

	for i := range out {
		path := pathByName[out[i].Filename]
		if path == "" {
			continue
		}
		s.deepOne(ctx, &out[i], path)
	}
	return out
}

func (s *Scanner) deepOne(ctx context.Context, signal *Signal, path string) {
	data, size, err := readPrefix(path, s.config.MaxReadBytes)
	if err != nil {
		signal.Confidence = 0.5
		return
	}
	signal.Size = size

	report := &DeepReport{DetectedType: detectType(data)}
	signal.Deep = report
	signal.Confidence = 0.95

	switch report.DetectedType {
	case TypePDF:
		s.scanPDF(data, report)
	case TypeZIP, TypeOOXML:
		s.scanZip(data, report)
	case TypeOLE:
		// OLE compound documents can carry VBA; without stream parsing the
		// safe call is macro-suspected
		report.MacroSuspected = true
	case TypeHTML:
		s.scanHTML(data, report)
	case TypeImage:
		s.scanImage(ctx, path, report)
	case TypeAudio:
		s.scanAudio(ctx, path, report)
	}

	if report.MacroSuspected && !signal.MacroSuspected {
		signal.MacroSuspected = true
		signal.addFlag(FlagMacroSuspected)
	}

	ext := strings.ToLower(filepath.Ext(signal.Filename))
	if expected, known := expectedSuffixes[report.DetectedType]; known && !expected[ext] {
		signal.ExtensionMismatch = true
		signal.addFlag(FlagExtensionMismatch)
	}
}

func (s *Scanner) scanPDF(data []byte, report *DeepReport) {
	content := string(data)
	if strings.Contains(content, "/JavaScript") || strings.Contains(content, "/JS") {
		report.HasJavaScript = true
		report.Notes = append(report.Notes, "pdf-javascript")
	}
	if strings.Contains(content, "/AcroForm") {
		report.HasAcroForm = true
		report.Notes = append(report.Notes, "pdf-acroform")
	}
	report.EmbeddedURLs = extractURLs(content, 16)
}

func (s *Scanner) scanZip(data []byte, report *DeepReport) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		report.Notes = append(report.Notes, "zip-unreadable")
		return
	}

	var relText strings.Builder
	for _, entry := range reader.File {
		name := strings.ToLower(entry.Name)
		if strings.HasSuffix(name, "vbaproject.bin") {
			report.MacroSuspected = true
			report.Notes = append(report.Notes, "vba-project")
		}
		if strings.HasSuffix(name, ".rels") || strings.HasSuffix(name, ".xml") {
			rc, err := entry.Open()
			if err != nil {
				continue
			}
			content, _ := io.ReadAll(io.LimitReader(rc, 256<<10))
			rc.Close()
			relText.Write(content)
		}
		if name == "[content_types].xml" {
			report.DetectedType = TypeOOXML
		}
	}
	report.EmbeddedURLs = extractURLs(relText.String(), 16)
}

func (s *Scanner) scanHTML(data []byte, report *DeepReport) {
	view := s.decoder.CompactHTML(string(data))
	report.EmbeddedURLs = view.Links
	report.BrandHits = view.BrandHits
	if view.PasswordFields > 0 {
		report.Notes = append(report.Notes, "html-password-form")
	}
	if view.ImpersonationScore >= 50 {
		report.Notes = append(report.Notes, "html-impersonation")
	}
}

func (s *Scanner) scanImage(ctx context.Context, path string, report *DeepReport) {
	if s.config.EnableOCR && s.config.OCR != nil {
		if text, err := s.capabilityText(ctx, s.config.OCR, path); err == nil {
			report.OCRText = text
			report.BrandHits = brandHits(text)
			report.EmbeddedURLs = extractURLs(text, 8)
		} else {
			report.Notes = append(report.Notes, "ocr-failed")
		}
	}
	if s.config.EnableQRDecode && s.config.QRDecode != nil {
		if decoded, err := s.capabilityText(ctx, s.config.QRDecode, path); err == nil && decoded != "" {
			report.EmbeddedURLs = append(report.EmbeddedURLs, extractURLs(decoded, 4)...)
			report.Notes = append(report.Notes, "qr-payload")
		}
	}
}

func (s *Scanner) scanAudio(ctx context.Context, path string, report *DeepReport) {
	if !s.config.EnableAudioTranscription || s.config.Transcribe == nil {
		return
	}
	if text, err := s.capabilityText(ctx, s.config.Transcribe, path); err == nil {
		report.Transcript = text
		report.BrandHits = brandHits(text)
	} else {
		report.Notes = append(report.Notes, "transcription-failed")
	}
}

const maxCapabilityChars = 8192

func (s *Scanner) capabilityText(ctx context.Context, capability Capability, path string) (string, error) {
	text, err := capability(ctx, path)
	if err != nil {
		return "", err
	}
	if len(text) > maxCapabilityChars {
		text = text[:maxCapabilityChars]
	}
	return text, nil
}

// detectType sniffs magic bytes for the types the deep pass understands
func detectType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return TypePDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if bytes.Contains(data, []byte("[Content_Types].xml")) {
			return TypeOOXML
		}
		return TypeZIP
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		return TypeOLE
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}),
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(data, []byte("GIF8")):
		return TypeImage
	case bytes.HasPrefix(data, []byte("ID3")),
		bytes.HasPrefix(data, []byte("OggS")),
		isWAV(data):
		return TypeAudio
	}

	head := strings.ToLower(string(data[:minInt(len(data), 512)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") {
		return TypeHTML
	}
	return TypeUnknown
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func readPrefix(path string, maxBytes int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, 0, err
	}
	return data, info.Size(), nil
}

func extractURLs(content string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range urlInContentPattern.FindAllString(content, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func brandHits(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, brand := range attachBrands {
		if strings.Contains(lower, brand) {
			hits = append(hits, brand)
		}
	}
	return hits
}

func (s *Signal) addFlag(flag string) {
	for _, f := range s.RiskFlags {
		if f == flag {
			return
		}
	}
	s.RiskFlags = append(s.RiskFlags, flag)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
