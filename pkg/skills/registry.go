// Package skills holds the whitelisted analysis steps and the fixed chain
// that runs them. Registration is closed: only the known skill names can be
// registered, and each skill declares a bounded step budget.
package skills

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/phishguard/phish-triage/pkg/attachments"
	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/headers"
	"github.com/phishguard/phish-triage/pkg/prescore"
	"github.com/phishguard/phish-triage/pkg/textcues"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
	"github.com/phishguard/phish-triage/pkg/webpage"
)

// Whitelisted skill names
const (
	NameEmailSurface           = "email_surface"
	NameHeaderAnalysis         = "header_analysis"
	NameURLRisk                = "url_risk"
	NameNLPCues                = "nlp_cues"
	NameAttachmentSurface      = "attachment_surface"
	NamePageContentAnalysis    = "page_content_analysis"
	NameAttachmentDeepAnalysis = "attachment_deep_analysis"
	NameRiskFusion             = "risk_fusion"
)

var (
	ErrNotWhitelisted    = errors.New("skill name not whitelisted")
	ErrAlreadyRegistered = errors.New("skill already registered")
	ErrNotRegistered     = errors.New("skill not registered")
	ErrInvalidMaxSteps   = errors.New("max steps must be between 1 and 5")
)

const (
	minSteps = 1
	maxSteps = 5
)

var whitelist = map[string]bool{
	NameEmailSurface:           true,
	NameHeaderAnalysis:         true,
	NameURLRisk:                true,
	NameNLPCues:                true,
	NameAttachmentSurface:      true,
	NamePageContentAnalysis:    true,
	NameAttachmentDeepAnalysis: true,
	NameRiskFusion:             true,
}

// ChainOrder is the fixed execution order for a full triage pass
var ChainOrder = []string{
	NameEmailSurface,
	NameHeaderAnalysis,
	NameURLRisk,
	NameNLPCues,
	NameAttachmentSurface,
	NamePageContentAnalysis,
	NameAttachmentDeepAnalysis,
	NameRiskFusion,
}

// Workspace carries the accumulated signal state through the chain
type Workspace struct {
	Email       *email.EmailInput
	Headers     *headers.Signals
	URLs        []*urlrisk.Signal
	Cues        *textcues.Cues
	Attachments []attachments.Signal
	Pages       []*webpage.Signal
	Fusion      *prescore.Report

	// Provenance
	LimitsHit []string
	Errors    []string
}

// MarkLimit records a budget or policy limit that was hit during analysis
func (w *Workspace) MarkLimit(limit string) {
	for _, l := range w.LimitsHit {
		if l == limit {
			return
		}
	}
	w.LimitsHit = append(w.LimitsHit, limit)
}

// Skill is one whitelisted analysis step
type Skill interface {
	Name() string
	Version() string
	MaxSteps() int
	Execute(ctx context.Context, ws *Workspace) error
}

// funcSkill adapts a function into a Skill
type funcSkill struct {
	name     string
	version  string
	maxSteps int
	fn       func(ctx context.Context, ws *Workspace) error
}

func (s *funcSkill) Name() string    { return s.name }
func (s *funcSkill) Version() string { return s.version }
func (s *funcSkill) MaxSteps() int   { return s.maxSteps }
func (s *funcSkill) Execute(ctx context.Context, ws *Workspace) error {
	return s.fn(ctx, ws)
}

// NewSkill wraps a function as a skill, validating name and step budget
func NewSkill(name, version string, steps int, fn func(ctx context.Context, ws *Workspace) error) (Skill, error) {
	if !whitelist[name] {
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, name)
	}
	if steps < minSteps || steps > maxSteps {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxSteps, steps)
	}
	if fn == nil {
		return nil, fmt.Errorf("skill %s: nil function", name)
	}
	return &funcSkill{name: name, version: version, maxSteps: steps, fn: fn}, nil
}

// Registry tracks registered skills
type Registry struct {
	skills map[string]Skill
	mu     sync.RWMutex
}

// NewRegistry creates an empty skill registry
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill. Only whitelisted names are accepted, and a name can
// be registered once.
func (r *Registry) Register(skill Skill) error {
	name := skill.Name()
	if !whitelist[name] {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, name)
	}
	if skill.MaxSteps() < minSteps || skill.MaxSteps() > maxSteps {
		return fmt.Errorf("%w: %s declares %d", ErrInvalidMaxSteps, name, skill.MaxSteps())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.skills[name] = skill
	return nil
}

// Get retrieves a skill by name
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skill, exists := r.skills[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return skill, nil
}

// List returns registered skill names in chain order, then any extras
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for _, name := range ChainOrder {
		if _, ok := r.skills[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
