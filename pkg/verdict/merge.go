package verdict

import (
	"github.com/phishguard/phish-triage/pkg/judge"
)

// Internal verdict values; suspicious exists only before collapse
const (
	Benign     = "benign"
	Suspicious = "suspicious"
	Phishing   = "phishing"
)

// Judge confidence required to promote a low-score message straight to
// phishing. Promotion to suspicious uses the policy threshold.
const promoteHighConfidence = 0.9

// Decision is the calibrated merge outcome before publication
type Decision struct {
	Verdict    string  `json:"verdict"`
	RiskScore  int     `json:"risk_score"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`

	// Collapsed records whether a suspicious verdict was lifted to phishing
	Collapsed bool `json:"collapsed,omitempty"`
}

// Merge runs the calibration state machine over the deterministic score and
// the optional judge output, then collapses suspicious to phishing.
func Merge(p Policy, deterministic int, j *judge.Output) Decision {
	p = p.Normalized()
	d := clampInt(deterministic, 0, 100)
	phishFloor := p.SuspiciousMaxScore + 1

	verdict := mergeVerdict(p, d, j, phishFloor)

	score := d
	if j != nil && verdict != Benign && j.RiskScore > score {
		score = j.RiskScore
	}
	score = normalizeScore(p, verdict, score, phishFloor)

	conf := deriveConfidence(p, verdict, d, j)

	decision := Decision{Verdict: verdict, RiskScore: score, Confidence: conf}
	if j != nil {
		decision.Reason = j.Reason
	}

	if decision.Verdict == Suspicious {
		decision.Verdict = Phishing
		decision.Collapsed = true
		if decision.RiskScore < phishFloor {
			decision.RiskScore = phishFloor
		}
	}
	return decision
}

func mergeVerdict(p Policy, d int, j *judge.Output, phishFloor int) string {
	// The deterministic score cannot be argued down
	if d >= phishFloor {
		return Phishing
	}

	if d < p.SuspiciousMinScore {
		if j != nil {
			switch {
			case j.Verdict == judge.VerdictPhishing && j.Confidence >= promoteHighConfidence:
				return Phishing
			case j.Verdict == judge.VerdictPhishing && j.Confidence >= p.PromoteLowToSuspiciousConfidence:
				return Suspicious
			case j.Verdict == judge.VerdictSuspicious && j.Confidence >= p.OverrideMidBandConfidence:
				return Suspicious
			}
			// Recall guardrail just under the suspicious band: a hesitant
			// judge does not clear a near-miss score
			if d >= p.SuspiciousMinScore-10 && j.Confidence < p.OverrideMidBandConfidence {
				return Suspicious
			}
		}
		return Benign
	}

	if d > p.SuspiciousMaxScore {
		return Phishing
	}

	// Suspicious band
	if j == nil {
		return Suspicious
	}
	switch {
	case j.Verdict == judge.VerdictSuspicious:
		return Suspicious
	case j.Verdict == judge.VerdictPhishing && j.Confidence >= p.OverrideMidBandConfidence:
		return Phishing
	case j.Verdict == judge.VerdictBenign && j.Confidence >= p.OverrideMidBandConfidence:
		return Benign
	}
	return j.Verdict
}

func normalizeScore(p Policy, verdict string, score, phishFloor int) int {
	switch verdict {
	case Phishing:
		if score < phishFloor {
			score = phishFloor
		}
	case Suspicious:
		score = clampInt(score, p.SuspiciousMinScore, p.SuspiciousMaxScore)
	case Benign:
		if score >= p.SuspiciousMinScore {
			score = p.SuspiciousMinScore - 1
		}
	}
	return clampInt(score, 0, 100)
}

func deriveConfidence(p Policy, verdict string, d int, j *judge.Output) float64 {
	conf := 0.0
	missing := 0
	if j != nil {
		conf = j.Confidence
		missing = len(j.MissingInfo)
	}
	if conf == 0 {
		conf = 0.35 + 0.55*float64(d)/100
	}

	penalty := 0.05 * float64(missing)
	if penalty > 0.2 {
		penalty = 0.2
	}
	conf -= penalty

	if verdict == Suspicious && conf > 0.78 {
		conf = 0.78
	}
	if verdict == Benign && d >= 20 && conf > 0.62 {
		conf = 0.62
	}
	return clampFloat(conf, 0, 1)
}
