package triage

import (
	"context"
	"fmt"

	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/prescore"
	"github.com/phishguard/phish-triage/pkg/skills"
)

const skillVersion = "1.0.0"

// buildRegistry registers the full whitelisted chain against this engine's
// analyzers.
func (e *Engine) buildRegistry() (*skills.Registry, error) {
	registry := skills.NewRegistry()

	register := func(name string, steps int, fn func(ctx context.Context, ws *skills.Workspace) error) error {
		skill, err := skills.NewSkill(name, skillVersion, steps, fn)
		if err != nil {
			return err
		}
		return registry.Register(skill)
	}

	wiring := []struct {
		name  string
		steps int
		fn    func(ctx context.Context, ws *skills.Workspace) error
	}{
		{skills.NameEmailSurface, 1, e.runEmailSurface},
		{skills.NameHeaderAnalysis, 1, e.runHeaderAnalysis},
		{skills.NameURLRisk, 2, e.runURLRisk},
		{skills.NameNLPCues, 1, e.runNLPCues},
		{skills.NameAttachmentSurface, 1, e.runAttachmentSurface},
		{skills.NamePageContentAnalysis, 3, e.runPageContent},
		{skills.NameAttachmentDeepAnalysis, 3, e.runAttachmentDeep},
		{skills.NameRiskFusion, 1, e.runRiskFusion},
	}
	for _, w := range wiring {
		if err := register(w.name, w.steps, w.fn); err != nil {
			return nil, fmt.Errorf("registering %s: %w", w.name, err)
		}
	}
	return registry, nil
}

func (e *Engine) runEmailSurface(ctx context.Context, ws *skills.Workspace) error {
	if ws.Email == nil {
		return fmt.Errorf("no parsed email in workspace")
	}
	return nil
}

func (e *Engine) runHeaderAnalysis(ctx context.Context, ws *skills.Workspace) error {
	ws.Headers = e.headerAnalyzer.Analyze(ws.Email)
	return nil
}

func (e *Engine) runURLRisk(ctx context.Context, ws *skills.Workspace) error {
	ws.URLs = e.urlAnalyzer.Analyze(ctx, ws.Email.URLs)
	return nil
}

func (e *Engine) runNLPCues(ctx context.Context, ws *skills.Workspace) error {
	ws.Cues = e.cuesAnalyzer.Analyze(ws.Email)
	return nil
}

func (e *Engine) runAttachmentSurface(ctx context.Context, ws *skills.Workspace) error {
	ws.Attachments = e.scanner.ScanSurface(ws.Email)
	return nil
}

func (e *Engine) runPageContent(ctx context.Context, ws *skills.Workspace) error {
	ws.Pages = e.pageAnalyzer.Analyze(ctx, ws.URLs)
	if len(ws.Pages) >= e.cfg.Fetch.MaxPageFetches {
		ws.MarkLimit("max_page_fetches")
	}
	return nil
}

func (e *Engine) runAttachmentDeep(ctx context.Context, ws *skills.Workspace) error {
	ws.Attachments = e.scanner.ScanDeep(ctx, ws.Email, ws.Attachments)

	// URLs recovered from attachment content join the URL signal set
	seen := make(map[string]bool, len(ws.URLs))
	for _, u := range ws.URLs {
		seen[u.URL] = true
	}
	var recovered []string
	for i := range ws.Attachments {
		deep := ws.Attachments[i].Deep
		if deep == nil {
			continue
		}
		for _, raw := range deep.EmbeddedURLs {
			c := email.CanonicalizeURL(raw)
			if c != "" && !seen[c] {
				seen[c] = true
				recovered = append(recovered, c)
			}
		}
	}
	if len(recovered) > 0 {
		ws.MarkLimit("nested_url_in_attachment")
		ws.URLs = append(ws.URLs, e.urlAnalyzer.Analyze(ctx, recovered)...)
	}
	return nil
}

func (e *Engine) runRiskFusion(ctx context.Context, ws *skills.Workspace) error {
	ws.Fusion = e.scorer.Score(prescore.Inputs{
		SenderDomain: ws.Email.SenderDomain(),
		Headers:      ws.Headers,
		URLs:         ws.URLs,
		Pages:        ws.Pages,
		Attachments:  ws.Attachments,
		Cues:         ws.Cues,
	})
	return nil
}
