// Package evidence holds the per-analysis evidence store and the typed pack
// consumed by scoring and the judge. The store is append-only and
// deduplicates records by content fingerprint.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/phishguard/phish-triage/pkg/attachments"
	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/headers"
	"github.com/phishguard/phish-triage/pkg/prescore"
	"github.com/phishguard/phish-triage/pkg/textcues"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
	"github.com/phishguard/phish-triage/pkg/webpage"
)

// Record categories
const (
	CategoryHeader     = "header"
	CategoryURL        = "url"
	CategoryWeb        = "web"
	CategoryAttachment = "attachment"
	CategoryText       = "text"
	CategoryScore      = "score"
)

// Record is one deduplicated evidence entry
type Record struct {
	EvidenceID  string    `json:"evidence_id"`
	Category    string    `json:"category"`
	Payload     string    `json:"payload"`
	Source      string    `json:"source"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	Fingerprint string    `json:"fingerprint"`
}

// Store is a per-analysis, in-memory evidence store. Not safe for concurrent
// use; one analysis owns one store.
type Store struct {
	records  []*Record
	byPrint  map[string]*Record
	sequence int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{byPrint: make(map[string]*Record)}
}

// Add appends a record, returning the existing one when an identical
// fingerprint was already stored.
func (s *Store) Add(category, payload, source string, tags []string) *Record {
	normalized := normalizeTags(tags)
	print := fingerprint(category, payload, source, normalized)
	if existing, ok := s.byPrint[print]; ok {
		return existing
	}

	s.sequence++
	record := &Record{
		EvidenceID:  fmt.Sprintf("ev-%04d", s.sequence),
		Category:    category,
		Payload:     payload,
		Source:      source,
		Tags:        normalized,
		CreatedAt:   time.Now().UTC(),
		Fingerprint: print,
	}
	s.records = append(s.records, record)
	s.byPrint[print] = record
	return record
}

// Records returns all records in insertion order
func (s *Store) Records() []*Record {
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records
func (s *Store) Len() int {
	return len(s.records)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// fingerprint hashes the canonical record identity
func fingerprint(category, payload, source string, tags []string) string {
	canonical, _ := json.Marshal(struct {
		Category string   `json:"category"`
		Payload  string   `json:"payload"`
		Source   string   `json:"source"`
		Tags     []string `json:"tags"`
	}{category, payload, source, tags})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// EmailMeta is the compact header summary carried in the pack
type EmailMeta struct {
	MessageID       string `json:"message_id"`
	Subject         string `json:"subject"`
	Sender          string `json:"sender"`
	ReplyTo         string `json:"reply_to,omitempty"`
	URLCount        int    `json:"url_count"`
	AttachmentCount int    `json:"attachment_count"`
}

// Provenance records how the pack was produced
type Provenance struct {
	TimingMs  map[string]int64 `json:"timing_ms"`
	LimitsHit []string         `json:"limits_hit"`
	Errors    []string         `json:"errors"`
}

// Pack is the typed stage-by-stage evidence consumed by fusion and the judge
type Pack struct {
	EmailMeta         EmailMeta            `json:"email_meta"`
	HeaderSignals     *headers.Signals     `json:"header_signals,omitempty"`
	URLSignals        []*urlrisk.Signal    `json:"url_signals"`
	WebSignals        []*webpage.Signal    `json:"web_signals,omitempty"`
	AttachmentSignals []attachments.Signal `json:"attachment_signals"`
	NLPCues           *textcues.Cues       `json:"nlp_cues,omitempty"`
	PreScore          *prescore.Report     `json:"pre_score,omitempty"`
	Provenance        Provenance           `json:"provenance"`
	Records           []*Record            `json:"records,omitempty"`
}

// NewPack builds a pack skeleton from the parsed input
func NewPack(input *email.EmailInput) *Pack {
	return &Pack{
		EmailMeta: EmailMeta{
			MessageID:       input.MessageID,
			Subject:         input.Subject,
			Sender:          input.Sender,
			ReplyTo:         input.ReplyTo,
			URLCount:        len(input.URLs),
			AttachmentCount: len(input.Attachments),
		},
		URLSignals:        []*urlrisk.Signal{},
		AttachmentSignals: []attachments.Signal{},
		Provenance: Provenance{
			TimingMs:  map[string]int64{},
			LimitsHit: []string{},
			Errors:    []string{},
		},
	}
}
