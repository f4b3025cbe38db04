package verdict

import "fmt"

// Issue severities
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one validation finding on a final result
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// ResultView is the minimal shape the online validator checks
type ResultView struct {
	Verdict        string
	RiskScore      int
	IndicatorCount int
	HasEvidence    bool
}

// Validate applies structural guardrails to a final result. Any error-level
// issue means the caller must fall back to the deterministic result.
func Validate(view ResultView) []Issue {
	issues := []Issue{}

	switch view.Verdict {
	case Benign, Suspicious, Phishing:
	default:
		issues = append(issues, Issue{
			Code:     "invalid_verdict",
			Message:  fmt.Sprintf("verdict %q is not a known value", view.Verdict),
			Severity: SeverityError,
		})
	}

	if view.RiskScore < 0 || view.RiskScore > 100 {
		issues = append(issues, Issue{
			Code:     "score_out_of_range",
			Message:  fmt.Sprintf("risk score %d outside [0,100]", view.RiskScore),
			Severity: SeverityError,
		})
	}

	if view.Verdict == Phishing {
		if view.IndicatorCount == 0 {
			issues = append(issues, Issue{
				Code:     "phishing_without_indicators",
				Message:  "phishing verdict carries no indicators",
				Severity: SeverityError,
			})
		}
		if !view.HasEvidence {
			issues = append(issues, Issue{
				Code:     "phishing_without_evidence",
				Message:  "phishing verdict carries no evidence object",
				Severity: SeverityError,
			})
		}
	}

	return issues
}

// HasErrors reports whether any issue is error severity
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
