package verdict

import "testing"

func issueCodes(issues []Issue) map[string]bool {
	codes := make(map[string]bool)
	for _, i := range issues {
		codes[i.Code] = true
	}
	return codes
}

func TestValidateCleanResult(t *testing.T) {
	issues := Validate(ResultView{Verdict: Phishing, RiskScore: 80, IndicatorCount: 3, HasEvidence: true})
	if len(issues) != 0 {
		t.Errorf("Clean result produced issues: %+v", issues)
	}
	if HasErrors(issues) {
		t.Error("Clean result must not have errors")
	}
}

func TestValidateInvalidVerdict(t *testing.T) {
	issues := Validate(ResultView{Verdict: "quarantine", RiskScore: 50})
	if !issueCodes(issues)["invalid_verdict"] {
		t.Errorf("Expected invalid_verdict, got %+v", issues)
	}
	if !HasErrors(issues) {
		t.Error("Invalid verdict must be an error")
	}
}

func TestValidateScoreRange(t *testing.T) {
	for _, score := range []int{-1, 101} {
		issues := Validate(ResultView{Verdict: Benign, RiskScore: score})
		if !issueCodes(issues)["score_out_of_range"] {
			t.Errorf("Score %d: expected score_out_of_range, got %+v", score, issues)
		}
	}
}

func TestValidatePhishingConsistency(t *testing.T) {
	issues := Validate(ResultView{Verdict: Phishing, RiskScore: 70})

	codes := issueCodes(issues)
	if !codes["phishing_without_indicators"] || !codes["phishing_without_evidence"] {
		t.Errorf("Expected consistency issues, got %+v", issues)
	}

	// Benign results are not held to the phishing consistency rules
	benign := Validate(ResultView{Verdict: Benign, RiskScore: 5})
	if len(benign) != 0 {
		t.Errorf("Benign without indicators produced issues: %+v", benign)
	}
}
