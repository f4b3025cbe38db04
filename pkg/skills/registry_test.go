package skills

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func noop(ctx context.Context, ws *Workspace) error { return nil }

func mustSkill(t *testing.T, name string, fn func(ctx context.Context, ws *Workspace) error) Skill {
	t.Helper()
	skill, err := NewSkill(name, "1.0.0", 1, fn)
	if err != nil {
		t.Fatalf("NewSkill(%s): %v", name, err)
	}
	return skill
}

func TestNewSkillValidation(t *testing.T) {
	tests := []struct {
		name    string
		skill   string
		steps   int
		wantErr error
	}{
		{"whitelisted", NameURLRisk, 2, nil},
		{"unknown name", "shell_exec", 1, ErrNotWhitelisted},
		{"zero steps", NameNLPCues, 0, ErrInvalidMaxSteps},
		{"too many steps", NameNLPCues, 6, ErrInvalidMaxSteps},
		{"max allowed", NameRiskFusion, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSkill(tt.skill, "1.0.0", tt.steps, noop)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewSkillNilFunction(t *testing.T) {
	if _, err := NewSkill(NameURLRisk, "1.0.0", 1, nil); err == nil {
		t.Error("Expected error for nil function")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(mustSkill(t, NameURLRisk, noop)); err != nil {
		t.Fatalf("First register failed: %v", err)
	}

	err := registry.Register(mustSkill(t, NameURLRisk, noop))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestGetUnregistered(t *testing.T) {
	_, err := NewRegistry().Get(NameRiskFusion)
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
}

func TestListFollowsChainOrder(t *testing.T) {
	registry := NewRegistry()
	// Register out of order
	for _, name := range []string{NameRiskFusion, NameEmailSurface, NameURLRisk} {
		if err := registry.Register(mustSkill(t, name, noop)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	want := []string{NameEmailSurface, NameURLRisk, NameRiskFusion}
	got := registry.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestChainContinuesAfterFailure(t *testing.T) {
	registry := NewRegistry()
	var order []string

	record := func(name string, err error) func(ctx context.Context, ws *Workspace) error {
		return func(ctx context.Context, ws *Workspace) error {
			order = append(order, name)
			return err
		}
	}

	registry.Register(mustSkill(t, NameEmailSurface, record(NameEmailSurface, nil)))
	registry.Register(mustSkill(t, NameHeaderAnalysis, record(NameHeaderAnalysis, fmt.Errorf("parse blew up"))))
	registry.Register(mustSkill(t, NameURLRisk, record(NameURLRisk, nil)))

	ws := &Workspace{}
	traces := NewChain(registry, nil).Run(context.Background(), ws,
		NameEmailSurface, NameHeaderAnalysis, NameURLRisk)

	if len(order) != 3 {
		t.Fatalf("Expected all 3 skills to run, got %v", order)
	}
	if traces[0].Status != StatusDone || traces[2].Status != StatusDone {
		t.Errorf("Healthy steps not done: %+v", traces)
	}
	if traces[1].Status != StatusError || traces[1].Error == "" {
		t.Errorf("Failing step not traced: %+v", traces[1])
	}
	if len(ws.Errors) != 1 {
		t.Fatalf("Expected 1 workspace error, got %v", ws.Errors)
	}
}

func TestChainSkipsUnregistered(t *testing.T) {
	registry := NewRegistry()
	registry.Register(mustSkill(t, NameEmailSurface, noop))

	traces := NewChain(registry, nil).Run(context.Background(), &Workspace{},
		NameEmailSurface, NamePageContentAnalysis)

	if len(traces) != 2 {
		t.Fatalf("Expected 2 traces, got %d", len(traces))
	}
	if traces[1].Status != StatusSkipped {
		t.Errorf("Expected skipped trace, got %+v", traces[1])
	}
}

func TestChainDefaultsToFullOrder(t *testing.T) {
	registry := NewRegistry()
	traces := NewChain(registry, nil).Run(context.Background(), &Workspace{})

	if len(traces) != len(ChainOrder) {
		t.Fatalf("Expected %d traces, got %d", len(ChainOrder), len(traces))
	}
	for i, trace := range traces {
		if trace.Name != ChainOrder[i] {
			t.Errorf("traces[%d] = %s, want %s", i, trace.Name, ChainOrder[i])
		}
	}
}

func TestMarkLimitDeduplicates(t *testing.T) {
	ws := &Workspace{}
	ws.MarkLimit("max_page_fetches")
	ws.MarkLimit("max_page_fetches")
	ws.MarkLimit("nested_url_in_attachment")

	if len(ws.LimitsHit) != 2 {
		t.Errorf("LimitsHit = %v, want 2 distinct entries", ws.LimitsHit)
	}
}
