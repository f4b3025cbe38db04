package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phishguard/phish-triage/pkg/attachments"
	"github.com/phishguard/phish-triage/pkg/config"
	"github.com/phishguard/phish-triage/pkg/decode"
	"github.com/phishguard/phish-triage/pkg/email"
	"github.com/phishguard/phish-triage/pkg/evidence"
	"github.com/phishguard/phish-triage/pkg/fetcher"
	"github.com/phishguard/phish-triage/pkg/headers"
	"github.com/phishguard/phish-triage/pkg/judge"
	"github.com/phishguard/phish-triage/pkg/prescore"
	"github.com/phishguard/phish-triage/pkg/skills"
	"github.com/phishguard/phish-triage/pkg/textcues"
	"github.com/phishguard/phish-triage/pkg/urlrisk"
	"github.com/phishguard/phish-triage/pkg/verdict"
	"github.com/phishguard/phish-triage/pkg/webpage"
)

// Emit receives stage events during a streaming analysis
type Emit func(Event)

// Engine is the analysis entrypoint. One engine serves many analyses; all
// per-analysis state lives in the workspace and evidence store.
type Engine struct {
	cfg    *config.Config
	logger *logrus.Logger
	policy verdict.Policy

	parser         *email.Parser
	headerAnalyzer *headers.Analyzer
	urlAnalyzer    *urlrisk.Analyzer
	cuesAnalyzer   *textcues.Analyzer
	scanner        *attachments.Scanner
	pageAnalyzer   *webpage.Analyzer

	scorer   *prescore.Scorer
	registry *skills.Registry
	chain    *skills.Chain
	judge    *judge.Adapter
}

// NewEngine wires an engine from configuration. The oracle may be nil; the
// engine then always returns the deterministic result.
func NewEngine(cfg *config.Config, oracle judge.Oracle, logger *logrus.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	decoder := decode.NewDecoder(decodeBudget(cfg.Decode))
	safeFetcher := fetcher.New(fetchPolicy(cfg.Fetch), logger)

	urlAnalyzer := urlrisk.NewAnalyzer(decoder, safeFetcher)
	urlAnalyzer.ExpandShortlinks = cfg.Deep.Enabled && cfg.Fetch.Enabled

	scanner := attachments.NewScanner(attachments.Config{
		MaxReadBytes:             cfg.Deep.MaxAttachmentBytes,
		EnableOCR:                cfg.Deep.EnableOCR,
		EnableQRDecode:           cfg.Deep.EnableQRDecode,
		EnableAudioTranscription: cfg.Deep.EnableAudioTranscription,
	}, decoder)

	e := &Engine{
		cfg:            cfg,
		logger:         logger,
		policy:         verdict.PolicyFromConfig(cfg),
		parser:         email.NewParser(),
		headerAnalyzer: headers.NewAnalyzer(),
		urlAnalyzer:    urlAnalyzer,
		cuesAnalyzer:   textcues.NewAnalyzer(),
		scanner:        scanner,
		pageAnalyzer:   webpage.NewAnalyzer(safeFetcher, decoder, cfg.Fetch.MaxPageFetches, logger),
		scorer:         prescore.NewScorer(cfg),
	}
	if oracle != nil {
		e.judge = judge.NewAdapter(oracle, time.Duration(cfg.Judge.TimeoutMs)*time.Millisecond, logger)
	}

	registry, err := e.buildRegistry()
	if err != nil {
		return nil, err
	}
	e.registry = registry
	e.chain = skills.NewChain(registry, logger)
	return e, nil
}

// Registry exposes the skill registry, mainly for inspection commands
func (e *Engine) Registry() *skills.Registry {
	return e.registry
}

// Analyze runs one full analysis and returns the final result
func (e *Engine) Analyze(ctx context.Context, raw string) (*TriageResult, error) {
	return e.AnalyzeStream(ctx, raw, nil)
}

// AnalyzeStream runs one analysis, emitting stage events along the way.
// Exactly one terminal "final" event carries the result.
func (e *Engine) AnalyzeStream(ctx context.Context, raw string, emit Emit) (*TriageResult, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	result, err := e.analyze(ctx, raw, emit)
	if err != nil {
		emit(Event{Stage: "final", Status: StatusError, Message: err.Error()})
		return nil, err
	}
	emit(Event{Stage: "final", Status: StatusDone, Data: result})
	return result, nil
}

func (e *Engine) analyze(ctx context.Context, raw string, emit Emit) (*TriageResult, error) {
	emit(Event{Stage: "parse", Status: StatusRunning})
	input, err := e.parser.Parse(raw)
	if err != nil {
		// The parser is tolerant; an error here means the input could not be
		// represented at all
		emit(Event{Stage: "parse", Status: StatusError, Message: err.Error()})
		return nil, fmt.Errorf("parsing input: %w", err)
	}
	emit(Event{Stage: "parse", Status: StatusDone, Data: input.Flags})

	if input.IsEmpty() {
		result := e.emptyResult(input)
		emit(Event{Stage: "plan", Status: StatusSkipped, Message: "empty message"})
		return result, nil
	}

	ws := &skills.Workspace{Email: input, LimitsHit: []string{}, Errors: []string{}}
	store := evidence.NewStore()

	// Surface chain
	emit(Event{Stage: "chain", Status: StatusRunning})
	traces := e.chain.Run(ctx, ws,
		skills.NameEmailSurface,
		skills.NameHeaderAnalysis,
		skills.NameURLRisk,
		skills.NameNLPCues,
		skills.NameAttachmentSurface,
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Preliminary fusion decides whether deep context runs
	preliminary := e.scorer.Score(prescore.Inputs{
		SenderDomain: input.SenderDomain(),
		Headers:      ws.Headers,
		URLs:         ws.URLs,
		Attachments:  ws.Attachments,
		Cues:         ws.Cues,
	})

	deepNames := []string{skills.NamePageContentAnalysis, skills.NameAttachmentDeepAnalysis}
	if preliminary.DeepContext && e.cfg.Deep.Enabled {
		traces = append(traces, e.chain.Run(ctx, ws, deepNames...)...)
	} else {
		for _, name := range deepNames {
			traces = append(traces, skills.StepTrace{Name: name, Status: skills.StatusSkipped})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	traces = append(traces, e.chain.Run(ctx, ws, skills.NameRiskFusion)...)
	emit(Event{Stage: "chain", Status: StatusDone, Data: traces})

	if ws.Fusion == nil {
		ws.Fusion = preliminary
	}
	pack := e.buildPack(ws, store, traces)
	emit(Event{Stage: "prescore", Status: StatusDone, Data: ws.Fusion})

	path := PathStandard
	if preliminary.DeepContext && e.cfg.Deep.Enabled {
		path = PathDeep
	}

	fallback := e.buildResult(ws, pack, store, traces, nil, path)
	fallback.ProviderUsed = providerHeuristics + fallbackSuffix

	// Plan: decide whether the judge runs at all
	useJudge := e.cfg.Judge.Enabled && e.judge.Available() && e.policy.AllowJudge(input.MessageID)
	if !useJudge {
		emit(Event{Stage: "plan", Status: StatusDone, Message: "deterministic only"})
		e.validateInto(fallback)
		return fallback, nil
	}
	emit(Event{Stage: "plan", Status: StatusDone, Message: "judge allowed"})

	emit(Event{Stage: "judge", Status: StatusRunning})
	judgeOut, err := e.judge.Judge(ctx, pack)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.WithError(err).Warn("judge unavailable, using deterministic result")
		emit(Event{Stage: "judge", Status: StatusFallback, Message: err.Error()})
		e.validateInto(fallback)
		return fallback, nil
	}
	emit(Event{Stage: "judge", Status: StatusDone, Data: map[string]interface{}{
		"verdict":      judgeOut.Verdict,
		"risk_score":   judgeOut.RiskScore,
		"confidence":   judgeOut.Confidence,
		"top_evidence": judgeOut.TopEvidence,
	}})

	merged := e.buildResult(ws, pack, store, traces, judgeOut, path)
	merged.ProviderUsed = providerJudge
	emit(Event{Stage: "merge", Status: StatusDone, Data: map[string]interface{}{
		"verdict":    merged.Verdict,
		"risk_score": merged.RiskScore,
	}})

	e.validateInto(merged)
	if verdict.HasErrors(merged.ValidationIssues) {
		emit(Event{Stage: "validate", Status: StatusFallback, Data: merged.ValidationIssues})
		fallback.ValidationIssues = merged.ValidationIssues
		e.validateInto(fallback)
		return fallback, nil
	}
	emit(Event{Stage: "validate", Status: StatusDone})
	return merged, nil
}

const (
	providerHeuristics = "heuristics"
	providerJudge      = "judge"
	fallbackSuffix     = ":fallback"
)

// buildPack assembles the evidence pack and fills the dedup store
func (e *Engine) buildPack(ws *skills.Workspace, store *evidence.Store, traces []skills.StepTrace) *evidence.Pack {
	pack := evidence.NewPack(ws.Email)
	pack.HeaderSignals = ws.Headers
	pack.URLSignals = ws.URLs
	pack.WebSignals = ws.Pages
	pack.AttachmentSignals = ws.Attachments
	pack.NLPCues = ws.Cues
	pack.PreScore = ws.Fusion
	pack.Provenance.LimitsHit = ws.LimitsHit
	pack.Provenance.Errors = ws.Errors
	for _, t := range traces {
		pack.Provenance.TimingMs[t.Name] = t.ElapsedMs
	}

	if ws.Headers != nil {
		store.Add(evidence.CategoryHeader, asJSON(ws.Headers), "header_analysis", ws.Headers.SuspiciousReceivedPatterns)
	}
	for _, u := range ws.URLs {
		store.Add(evidence.CategoryURL, asJSON(u), "url_risk", u.RiskFlags)
	}
	for _, p := range ws.Pages {
		store.Add(evidence.CategoryWeb, asJSON(p), "page_content_analysis", p.RiskFlags)
	}
	for i := range ws.Attachments {
		a := &ws.Attachments[i]
		store.Add(evidence.CategoryAttachment, asJSON(a), "attachment_scan", a.RiskFlags)
	}
	if ws.Cues != nil {
		store.Add(evidence.CategoryText, asJSON(ws.Cues), "nlp_cues", ws.Cues.Impersonation)
	}
	if ws.Fusion != nil {
		store.Add(evidence.CategoryScore, asJSON(ws.Fusion), "risk_fusion", ws.Fusion.Reasons)
	}
	pack.Records = store.Records()
	return pack
}

// buildResult merges and packages one final result. A nil judge output means
// the deterministic-only path.
func (e *Engine) buildResult(ws *skills.Workspace, pack *evidence.Pack, store *evidence.Store, traces []skills.StepTrace, judgeOut *judge.Output, path string) *TriageResult {
	fusion := ws.Fusion
	decision := verdict.Merge(e.policy, fusion.RiskScore, judgeOut)
	label := verdict.DeriveSpamLabel(e.cfg.Detection.SpamKeywords, ws.Email, decision.Verdict, fusion.RiskScore, e.policy.SuspiciousMaxScore)

	indicators := append([]string{}, fusion.Reasons...)
	if domain := ws.Email.SenderDomain(); domain != "" && e.cfg.IsTrustedDomain(domain) {
		indicators = append(indicators, "sender:trusted_domain")
	}
	indicators = appendChainFlagIndicators(indicators, ws.Email.Flags)

	reason := decision.Reason
	if reason == "" {
		reason = deterministicReason(decision.Verdict, fusion)
	}

	actions := defaultActions(decision.Verdict, fusion.Route)
	if judgeOut != nil && len(judgeOut.RecommendedActions) > 0 {
		actions = judgeOut.RecommendedActions
	}

	attachmentNames := make([]string, 0, len(ws.Email.Attachments))
	for _, a := range ws.Email.Attachments {
		attachmentNames = append(attachmentNames, a.Filename)
	}

	return &TriageResult{
		Verdict:            decision.Verdict,
		Reason:             reason,
		Path:               path,
		RiskScore:          decision.RiskScore,
		Confidence:         decision.Confidence,
		EmailLabel:         label.EmailLabel,
		IsSpam:             label.IsSpam,
		IsPhishEmail:       label.IsPhishEmail,
		SpamScore:          label.SpamScore,
		ThreatTags:         threatTags(fusion.Reasons),
		Indicators:         indicators,
		RecommendedActions: actions,
		Input:              ws.Email,
		URLs:               ws.Email.URLs,
		Attachments:        attachmentNames,
		Evidence: &EvidenceBundle{
			Pack:     pack,
			Judge:    judgeOut,
			Precheck: fusion,
			Trace:    traces,
			Records:  store.Records(),
		},
	}
}

func (e *Engine) emptyResult(input *email.EmailInput) *TriageResult {
	return &TriageResult{
		Verdict:            verdict.Benign,
		Reason:             "empty message",
		Path:               PathFast,
		RiskScore:          0,
		Confidence:         0.99,
		EmailLabel:         verdict.LabelBenign,
		ThreatTags:         []string{},
		Indicators:         []string{},
		RecommendedActions: []string{"deliver"},
		Input:              input,
		URLs:               []string{},
		Attachments:        []string{},
		ProviderUsed:       providerHeuristics + fallbackSuffix,
	}
}

func (e *Engine) validateInto(result *TriageResult) {
	result.ValidationIssues = verdict.Validate(verdict.ResultView{
		Verdict:        result.Verdict,
		RiskScore:      result.RiskScore,
		IndicatorCount: len(result.Indicators),
		HasEvidence:    result.Evidence != nil,
	})
}

func deterministicReason(finalVerdict string, fusion *prescore.Report) string {
	if finalVerdict == verdict.Phishing {
		if len(fusion.Reasons) > 0 {
			return "deterministic signals: " + fusion.Reasons[0]
		}
		return "deterministic risk score over threshold"
	}
	return "no sufficient risk signals"
}

func appendChainFlagIndicators(indicators []string, flags email.ChainFlags) []string {
	if flags.HiddenHTMLLinks {
		indicators = append(indicators, "html:hidden_links")
	}
	if flags.HTMLActiveContent {
		indicators = append(indicators, "html:active_content")
	}
	if flags.URLToAttachmentChain {
		indicators = append(indicators, "chain:url_and_attachment")
	}
	return indicators
}

func asJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func fetchPolicy(cfg config.FetchConfig) fetcher.Policy {
	policy := fetcher.DefaultPolicy()
	policy.Enabled = cfg.Enabled
	if cfg.TimeoutMs > 0 {
		policy.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	if cfg.ConnectTimeoutMs > 0 {
		policy.ConnectTimeout = time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	}
	if cfg.MaxRedirects > 0 {
		policy.MaxRedirects = cfg.MaxRedirects
	}
	if cfg.MaxBytes > 0 {
		policy.MaxBytes = cfg.MaxBytes
	}
	policy.AllowPrivateNetwork = cfg.AllowPrivateNetwork
	if cfg.UserAgent != "" {
		policy.UserAgent = cfg.UserAgent
	}
	if cfg.SandboxBackend != "" {
		policy.SandboxBackend = cfg.SandboxBackend
	}
	if cfg.SandboxExecTimeoutMs > 0 {
		policy.SandboxExecTimeout = time.Duration(cfg.SandboxExecTimeoutMs) * time.Millisecond
	}
	return policy
}

func decodeBudget(cfg config.DecodeConfig) decode.Budget {
	budget := decode.DefaultBudget()
	if cfg.MaxInputChars > 0 {
		budget.MaxInputChars = cfg.MaxInputChars
	}
	if cfg.MaxOutputChars > 0 {
		budget.MaxOutputChars = cfg.MaxOutputChars
	}
	if cfg.MaxRounds > 0 {
		budget.MaxRounds = cfg.MaxRounds
	}
	if cfg.MaxNestedURLs > 0 {
		budget.MaxNestedURLs = cfg.MaxNestedURLs
	}
	if cfg.MaxBase64Input > 0 {
		budget.MaxBase64Input = cfg.MaxBase64Input
	}
	if cfg.MaxBase64Output > 0 {
		budget.MaxBase64Output = cfg.MaxBase64Output
	}
	if cfg.MaxDataURIOutput > 0 {
		budget.MaxDataURIOutput = cfg.MaxDataURIOutput
	}
	return budget
}
