package judge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/evidence"
)

type stubOracle struct {
	out     *Output
	err     error
	payload []byte
	delay   time.Duration
}

func (s *stubOracle) Judge(ctx context.Context, payload []byte) (*Output, error) {
	s.payload = payload
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.out, s.err
}

func testPack() *evidence.Pack {
	return evidence.NewPack(&email.EmailInput{
		MessageID: "msg-1",
		Subject:   "Verify your account",
		Sender:    "alerts@bank.test",
	})
}

func TestJudgeSuccess(t *testing.T) {
	oracle := &stubOracle{out: &Output{
		Verdict:    VerdictPhishing,
		RiskScore:  82,
		Confidence: 0.91,
		Reason:     "credential harvest page behind shortlink",
	}}

	out, err := NewAdapter(oracle, time.Second, nil).Judge(context.Background(), testPack())
	if err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	if out.Verdict != VerdictPhishing || out.RiskScore != 82 {
		t.Errorf("Unexpected output %+v", out)
	}
}

func TestJudgePayloadRedacted(t *testing.T) {
	oracle := &stubOracle{out: &Output{Verdict: VerdictBenign, Confidence: 0.5}}

	if _, err := NewAdapter(oracle, time.Second, nil).Judge(context.Background(), testPack()); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	payload := string(oracle.payload)
	if strings.Contains(payload, "alerts@bank.test") {
		t.Errorf("Sender address leaked to oracle: %s", payload)
	}
	if !strings.Contains(payload, "xx***@bank.test") {
		t.Errorf("Expected masked sender in payload: %s", payload)
	}
}

func TestJudgeOracleError(t *testing.T) {
	oracle := &stubOracle{err: fmt.Errorf("upstream unavailable")}

	if _, err := NewAdapter(oracle, time.Second, nil).Judge(context.Background(), testPack()); err == nil {
		t.Fatal("Expected error from failing oracle")
	}
}

func TestJudgeMalformedOutput(t *testing.T) {
	tests := []struct {
		name string
		out  *Output
	}{
		{"nil output", nil},
		{"unknown verdict", &Output{Verdict: "maybe", RiskScore: 50, Confidence: 0.5}},
		{"score out of range", &Output{Verdict: VerdictBenign, RiskScore: 140, Confidence: 0.5}},
		{"confidence out of range", &Output{Verdict: VerdictBenign, RiskScore: 10, Confidence: 1.4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &stubOracle{out: tt.out}
			if _, err := NewAdapter(oracle, time.Second, nil).Judge(context.Background(), testPack()); err == nil {
				t.Error("Expected malformed output error")
			}
		})
	}
}

func TestJudgeTimeout(t *testing.T) {
	oracle := &stubOracle{
		out:   &Output{Verdict: VerdictBenign, Confidence: 0.5},
		delay: 500 * time.Millisecond,
	}

	if _, err := NewAdapter(oracle, 50*time.Millisecond, nil).Judge(context.Background(), testPack()); err == nil {
		t.Fatal("Expected deadline error")
	}
}

func TestAdapterAvailability(t *testing.T) {
	var nilAdapter *Adapter
	if nilAdapter.Available() {
		t.Error("Nil adapter must not be available")
	}
	if NewAdapter(nil, 0, nil).Available() {
		t.Error("Adapter without oracle must not be available")
	}
	if !NewAdapter(&stubOracle{}, 0, nil).Available() {
		t.Error("Wired adapter must be available")
	}
}
