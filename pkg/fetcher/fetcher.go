// Package fetcher implements the SSRF-guarded, bounded HTTP fetch used for
// shortlink expansion and deep page analysis. One bounded GET per target,
// redirects followed manually with the guard re-applied at every hop.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is the closed set of fetch outcomes
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeHTTPError    Outcome = "http_error"
	OutcomeNetworkError Outcome = "network_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeSandboxError Outcome = "sandbox_error"
)

// Block and skip reasons
const (
	ReasonNetworkFetchDisabled  = "network_fetch_disabled"
	ReasonSchemeNotAllowed      = "scheme_not_allowed"
	ReasonMissingHost           = "missing_host"
	ReasonPrivateNetworkBlocked = "private_network_blocked"
	ReasonRedirectLimitExceeded = "redirect_limit_exceeded"
	ReasonSizeCapExceeded       = "size_cap_exceeded"
	ReasonBinaryDownload        = "binary_download"
	ReasonResolveFailed         = "resolve_failed"

	ReasonSandboxUnavailable  = "sandbox_backend_unavailable"
	ReasonSandboxWorkerFailed = "sandbox_worker_failed"
)

// Policy controls a fetch request
type Policy struct {
	Enabled             bool          `json:"enabled"`
	Timeout             time.Duration `json:"timeout"`
	ConnectTimeout      time.Duration `json:"connect_timeout"`
	MaxRedirects        int           `json:"max_redirects"`
	MaxBytes            int64         `json:"max_bytes"`
	AllowPrivateNetwork bool          `json:"allow_private_network"`
	UserAgent           string        `json:"user_agent"`

	// internal, firejail or docker
	SandboxBackend     string        `json:"sandbox_backend"`
	SandboxExecTimeout time.Duration `json:"sandbox_exec_timeout"`
}

// DefaultPolicy returns a conservative fetch policy
func DefaultPolicy() Policy {
	return Policy{
		Enabled:             false,
		Timeout:             8 * time.Second,
		ConnectTimeout:      4 * time.Second,
		MaxRedirects:        5,
		MaxBytes:            1 << 20,
		AllowPrivateNetwork: false,
		UserAgent:           "phish-triage/1.0 (+safe-fetch)",
		SandboxBackend:      "internal",
		SandboxExecTimeout:  20 * time.Second,
	}
}

// Result is the outcome of one safe fetch
type Result struct {
	Outcome       Outcome  `json:"outcome"`
	Reason        string   `json:"reason,omitempty"`
	URL           string   `json:"url"`
	FinalURL      string   `json:"final_url,omitempty"`
	HTTPStatus    int      `json:"http_status,omitempty"`
	RedirectChain []string `json:"redirect_chain,omitempty"`
	ContentType   string   `json:"content_type,omitempty"`
	Body          string   `json:"body,omitempty"`
	Truncated     bool     `json:"truncated,omitempty"`
	ElapsedMs     int64    `json:"elapsed_ms"`
}

// OK reports whether the fetch produced a usable 2xx body
func (r *Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Fetcher performs safe fetches under a policy
type Fetcher struct {
	policy Policy
	logger *logrus.Logger

	// Overridable for tests
	lookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// New creates a safe fetcher
func New(policy Policy, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Fetcher{
		policy: policy,
		logger: logger,
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		},
	}
}

// Policy returns the fetcher's policy
func (f *Fetcher) Policy() Policy {
	return f.policy
}

// WithPolicy returns a fetcher sharing resolver and logger but with a
// tightened policy, used for shortlink expansion.
func (f *Fetcher) WithPolicy(policy Policy) *Fetcher {
	clone := *f
	clone.policy = policy
	return &clone
}

// Fetch performs one guarded GET, dispatching to a sandbox worker when the
// policy selects an external backend.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Result {
	if !f.policy.Enabled {
		return &Result{Outcome: OutcomeSkipped, Reason: ReasonNetworkFetchDisabled, URL: rawURL}
	}

	switch f.policy.SandboxBackend {
	case "firejail", "docker":
		return f.fetchSandboxed(ctx, rawURL)
	default:
		return f.FetchInternal(ctx, rawURL)
	}
}

// FetchInternal performs the in-process guarded GET. The sandbox worker
// command calls this directly.
func (f *Fetcher) FetchInternal(ctx context.Context, rawURL string) *Result {
	start := time.Now()
	result := &Result{URL: rawURL}
	defer func() { result.ElapsedMs = time.Since(start).Milliseconds() }()

	ctx, cancel := context.WithTimeout(ctx, f.policy.Timeout)
	defer cancel()

	current, reason := f.preflight(ctx, rawURL)
	if reason != "" {
		result.Outcome = OutcomeBlocked
		result.Reason = reason
		return result
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: f.policy.ConnectTimeout}).DialContext,
		},
	}

	for redirects := 0; ; redirects++ {
		resp, err := f.doGet(ctx, client, current)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				result.Outcome = OutcomeTimeout
				result.Reason = "timeout"
			} else {
				result.Outcome = OutcomeNetworkError
				result.Reason = err.Error()
			}
			return result
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				result.Outcome = OutcomeHTTPError
				result.HTTPStatus = resp.StatusCode
				result.FinalURL = current.String()
				return result
			}
			next, err := current.Parse(location)
			if err != nil {
				result.Outcome = OutcomeNetworkError
				result.Reason = "bad redirect location"
				return result
			}
			if redirects >= f.policy.MaxRedirects {
				result.Outcome = OutcomeBlocked
				result.Reason = ReasonRedirectLimitExceeded
				result.FinalURL = next.String()
				return result
			}
			// Re-apply the SSRF guard after every redirect
			guarded, reason := f.preflight(ctx, next.String())
			if reason != "" {
				result.Outcome = OutcomeBlocked
				result.Reason = reason
				result.FinalURL = next.String()
				return result
			}
			result.RedirectChain = append(result.RedirectChain, next.String())
			current = guarded
			continue
		}

		defer resp.Body.Close()
		result.FinalURL = current.String()
		result.HTTPStatus = resp.StatusCode
		result.ContentType = resp.Header.Get("Content-Type")

		if reason := blockedContentType(result.ContentType); reason != "" {
			result.Outcome = OutcomeBlocked
			result.Reason = reason
			return result
		}
		if resp.ContentLength > f.policy.MaxBytes {
			result.Outcome = OutcomeBlocked
			result.Reason = ReasonSizeCapExceeded
			return result
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.policy.MaxBytes+1))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				result.Outcome = OutcomeTimeout
				result.Reason = "timeout"
			} else {
				result.Outcome = OutcomeNetworkError
				result.Reason = err.Error()
			}
			return result
		}
		if int64(len(body)) > f.policy.MaxBytes {
			body = body[:f.policy.MaxBytes]
			result.Truncated = true
		}
		result.Body = string(body)

		if resp.StatusCode >= 400 {
			result.Outcome = OutcomeHTTPError
		} else {
			result.Outcome = OutcomeOK
		}
		return result
	}
}

func (f *Fetcher) doGet(ctx context.Context, client *http.Client, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.policy.UserAgent)
	return client.Do(req)
}

// preflight validates scheme and host and resolves the hostname through the
// SSRF guard. Returns the parsed URL or a block reason.
func (f *Fetcher) preflight(ctx context.Context, rawURL string) (*url.URL, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ReasonMissingHost
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ReasonSchemeNotAllowed
	}
	host := u.Hostname()
	if host == "" {
		return nil, ReasonMissingHost
	}

	if ip := net.ParseIP(host); ip != nil {
		if !f.policy.AllowPrivateNetwork && isForbiddenAddress(ip) {
			return nil, ReasonPrivateNetworkBlocked
		}
		return u, ""
	}

	ips, err := f.lookupIP(ctx, host)
	if err != nil || len(ips) == 0 {
		return nil, ReasonResolveFailed
	}
	if !f.policy.AllowPrivateNetwork {
		for _, ip := range ips {
			if isForbiddenAddress(ip) {
				return nil, ReasonPrivateNetworkBlocked
			}
		}
	}
	return u, ""
}

var reservedNets = mustParseCIDRs(
	"100.64.0.0/10", // carrier-grade NAT
	"192.0.0.0/24",
	"192.0.2.0/24", // TEST-NET
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
)

// isForbiddenAddress rejects private, loopback, link-local, reserved,
// multicast and unspecified addresses.
func isForbiddenAddress(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func blockedContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "application/x-msdownload") || strings.HasPrefix(ct, "application/octet-stream") {
		return ReasonBinaryDownload
	}
	return ""
}
