// Package verdict merges the deterministic pre-score with the judge output
// into a calibrated final verdict, derives the independent spam label and
// validates the published result shape.
package verdict

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/phishguard/phish-triage/pkg/config"
)

// Judge allow modes
const (
	AllowNever   = "never"
	AllowSampled = "sampled"
	AllowAlways  = "always"
)

// Policy is the immutable calibration configuration
type Policy struct {
	PreScoreReviewThreshold int
	PreScoreDeepThreshold   int
	ContextTriggerScore     int
	SuspiciousMinScore      int
	SuspiciousMaxScore      int

	PromoteLowToSuspiciousConfidence float64
	OverrideMidBandConfidence        float64

	JudgeAllowMode       string
	JudgeAllowSampleRate float64
	JudgeAllowSampleSalt string
}

// PolicyFromConfig maps the runtime configuration onto a policy
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		PreScoreReviewThreshold:          cfg.Detection.PreScoreReviewThreshold,
		PreScoreDeepThreshold:            cfg.Detection.PreScoreDeepThreshold,
		ContextTriggerScore:              cfg.Detection.ContextTriggerScore,
		SuspiciousMinScore:               cfg.Detection.SuspiciousMinScore,
		SuspiciousMaxScore:               cfg.Detection.SuspiciousMaxScore,
		PromoteLowToSuspiciousConfidence: cfg.Judge.PromoteLowToSuspiciousConfidence,
		OverrideMidBandConfidence:        cfg.Judge.OverrideMidBandConfidence,
		JudgeAllowMode:                   cfg.Judge.AllowMode,
		JudgeAllowSampleRate:             cfg.Judge.AllowSampleRate,
		JudgeAllowSampleSalt:             cfg.Judge.AllowSampleSalt,
	}.Normalized()
}

// DefaultPolicy returns the standard calibration policy
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig())
}

// Normalized clamps every field into its legal range
func (p Policy) Normalized() Policy {
	p.PreScoreReviewThreshold = clampInt(p.PreScoreReviewThreshold, 0, 100)
	p.PreScoreDeepThreshold = clampInt(p.PreScoreDeepThreshold, p.PreScoreReviewThreshold, 100)
	p.ContextTriggerScore = clampInt(p.ContextTriggerScore, 0, 100)
	p.SuspiciousMinScore = clampInt(p.SuspiciousMinScore, 0, 100)
	p.SuspiciousMaxScore = clampInt(p.SuspiciousMaxScore, p.SuspiciousMinScore, 100)
	p.PromoteLowToSuspiciousConfidence = clampFloat(p.PromoteLowToSuspiciousConfidence, 0, 1)
	p.OverrideMidBandConfidence = clampFloat(p.OverrideMidBandConfidence, 0, 1)
	p.JudgeAllowSampleRate = clampFloat(p.JudgeAllowSampleRate, 0, 1)

	switch p.JudgeAllowMode {
	case AllowNever, AllowSampled, AllowAlways:
	default:
		p.JudgeAllowMode = AllowNever
	}
	return p
}

// AllowJudge decides whether the judge may run for this message. Sampling is
// deterministic per message id under the configured salt.
func (p Policy) AllowJudge(messageID string) bool {
	switch p.JudgeAllowMode {
	case AllowAlways:
		return true
	case AllowSampled:
		if p.JudgeAllowSampleRate <= 0 {
			return false
		}
		if p.JudgeAllowSampleRate >= 1 {
			return true
		}
		sum := sha256.Sum256([]byte(p.JudgeAllowSampleSalt + ":" + messageID))
		bucket := float64(binary.BigEndian.Uint32(sum[:4])) / float64(1<<32)
		return bucket < p.JudgeAllowSampleRate
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
