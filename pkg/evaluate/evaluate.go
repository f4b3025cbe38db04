// Package evaluate computes binary classification metrics over labeled
// triage outcomes.
package evaluate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SuspiciousMapping controls how a three-valued verdict folds to binary
type SuspiciousMapping string

const (
	SuspiciousAsPositive SuspiciousMapping = "positive"
	SuspiciousAsNegative SuspiciousMapping = "negative"
)

// Sample is one (predicted, truth) verdict pair
type Sample struct {
	Predicted string `json:"predicted"`
	Truth     string `json:"truth"`
}

// Metrics is the evaluation summary
type Metrics struct {
	Samples int `json:"samples"`

	TruePositives  int `json:"tp"`
	TrueNegatives  int `json:"tn"`
	FalsePositives int `json:"fp"`
	FalseNegatives int `json:"fn"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluate folds verdicts to binary under the mapping and counts outcomes.
// Precision, recall and f1 are zero when their denominators are zero.
func Evaluate(samples []Sample, mapping SuspiciousMapping) Metrics {
	m := Metrics{Samples: len(samples)}

	for _, s := range samples {
		predicted := positive(s.Predicted, mapping)
		truth := positive(s.Truth, mapping)
		switch {
		case predicted && truth:
			m.TruePositives++
		case !predicted && !truth:
			m.TrueNegatives++
		case predicted && !truth:
			m.FalsePositives++
		default:
			m.FalseNegatives++
		}
	}

	if m.Samples > 0 {
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(m.Samples)
	}
	if d := m.TruePositives + m.FalsePositives; d > 0 {
		m.Precision = float64(m.TruePositives) / float64(d)
	}
	if d := m.TruePositives + m.FalseNegatives; d > 0 {
		m.Recall = float64(m.TruePositives) / float64(d)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func positive(v string, mapping SuspiciousMapping) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "phishing", "phish", "phish_email", "spam":
		return true
	case "suspicious":
		return mapping == SuspiciousAsPositive
	}
	return false
}

// LoadSamples reads samples from a JSON array or JSON-lines file
func LoadSamples(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var samples []Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("parsing samples: %w", err)
		}
		return samples, nil
	}

	var samples []Sample
	for i, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("parsing sample line %d: %w", i+1, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}
