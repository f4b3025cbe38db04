// Package judge adapts an external verdict oracle. The adapter owns the
// request deadline and the redaction of the evidence pack before it leaves
// the process.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phishguard/phish-triage/pkg/evidence"
)

// Judge verdicts
const (
	VerdictBenign     = "benign"
	VerdictSuspicious = "suspicious"
	VerdictPhishing   = "phishing"
)

// TopEvidence is one claim with a pointer into the evidence pack
type TopEvidence struct {
	Claim        string `json:"claim"`
	EvidencePath string `json:"evidence_path"`
}

// Output is the oracle's typed response
type Output struct {
	Verdict            string        `json:"verdict"`
	RiskScore          int           `json:"risk_score"`
	Confidence         float64       `json:"confidence"`
	TopEvidence        []TopEvidence `json:"top_evidence"`
	RecommendedActions []string      `json:"recommended_actions"`
	MissingInfo        []string      `json:"missing_info"`
	Reason             string        `json:"reason"`
}

// Valid reports whether the output is structurally usable
func (o *Output) Valid() bool {
	switch o.Verdict {
	case VerdictBenign, VerdictSuspicious, VerdictPhishing:
	default:
		return false
	}
	return o.RiskScore >= 0 && o.RiskScore <= 100 && o.Confidence >= 0 && o.Confidence <= 1
}

// Oracle is the external judge transport
type Oracle interface {
	Judge(ctx context.Context, payload []byte) (*Output, error)
}

// Adapter wraps an oracle with redaction and a deadline
type Adapter struct {
	oracle  Oracle
	timeout time.Duration
	logger  *logrus.Logger
}

// NewAdapter creates a judge adapter
func NewAdapter(oracle Oracle, timeout time.Duration, logger *logrus.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{oracle: oracle, timeout: timeout, logger: logger}
}

// Available reports whether an oracle is wired
func (a *Adapter) Available() bool {
	return a != nil && a.oracle != nil
}

// Judge redacts the pack, serializes it and calls the oracle under a deadline
func (a *Adapter) Judge(ctx context.Context, pack *evidence.Pack) (*Output, error) {
	if !a.Available() {
		return nil, fmt.Errorf("no judge oracle configured")
	}

	payload, err := RedactedPayload(pack)
	if err != nil {
		return nil, fmt.Errorf("building judge payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	out, err := a.oracle.Judge(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}
	if out == nil || !out.Valid() {
		return nil, fmt.Errorf("judge returned malformed output")
	}

	a.logger.WithFields(logrus.Fields{
		"verdict":    out.Verdict,
		"risk_score": out.RiskScore,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("judge completed")
	return out, nil
}

// RedactedPayload serializes a pack after masking addresses and secrets.
// Redaction works on the serialized form so it covers every nested field,
// and is idempotent: re-redacting produces the same bytes.
func RedactedPayload(pack *evidence.Pack) ([]byte, error) {
	raw, err := json.Marshal(pack)
	if err != nil {
		return nil, err
	}
	return []byte(Redact(string(raw))), nil
}
