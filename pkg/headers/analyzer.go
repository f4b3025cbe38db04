// Package headers extracts authentication and routing signals from a parsed
// message. Everything here is offline: results are read from the
// Authentication-Results and Received headers as recorded by the receiving
// MTA, no DNS lookups are performed during triage.
package headers

import (
	"net"
	"regexp"
	"strings"

	"github.com/phishguard/phish-triage/pkg/email"
)

// AuthResult is one mechanism's recorded outcome
type AuthResult struct {
	Result string `json:"result"` // pass, fail, softfail, neutral, none, temperror, permerror
	Domain string `json:"domain,omitempty"`
	Policy string `json:"policy,omitempty"`
}

// Signals is the header analysis output
type Signals struct {
	SPF   AuthResult `json:"spf"`
	DKIM  AuthResult `json:"dkim"`
	DMARC AuthResult `json:"dmarc"`

	FromReplyToMismatch        bool     `json:"from_replyto_mismatch"`
	ReceivedHops               int      `json:"received_hops"`
	SuspiciousReceivedPatterns []string `json:"suspicious_received_patterns"`

	Confidence float64 `json:"confidence"`
}

// Suspicious received-chain pattern tags
const (
	PatternPrivateIPInChain  = "private_ip_in_received_chain"
	PatternLocalhostRelay    = "localhost_relay"
	PatternSuspiciousRelay   = "suspicious_relay_name"
	PatternExcessiveHops     = "excessive_hops"
	PatternDynamicClientHost = "dynamic_client_host"
)

var (
	authParamPattern = regexp.MustCompile(`(spf|dkim|dmarc)\s*=\s*([a-z]+)`)
	authDomainParams = map[string]*regexp.Regexp{
		"spf":   regexp.MustCompile(`smtp\.mailfrom=(?:[^@;\s]*@)?([^;\s]+)`),
		"dkim":  regexp.MustCompile(`header\.d=([^;\s]+)`),
		"dmarc": regexp.MustCompile(`header\.from=([^;\s]+)`),
	}
	dmarcPolicyPattern = regexp.MustCompile(`p=([a-z]+)`)
	ipPattern          = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	suspiciousRelayNames = []string{
		"suspicious", "spam", "bulk", "mass", "marketing", "promo",
	}
	dynamicHostNames = []string{
		"dynamic", "dhcp", "dial", "cable", "dsl", "adsl", "pool",
	}
)

const maxReasonableHops = 15

// Analyzer extracts header signals
type Analyzer struct{}

// NewAnalyzer creates a header analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze reads authentication and routing signals from the input's headers
func (a *Analyzer) Analyze(input *email.EmailInput) *Signals {
	signals := &Signals{
		SPF:                        AuthResult{Result: "none"},
		DKIM:                       AuthResult{Result: "none"},
		DMARC:                      AuthResult{Result: "none"},
		SuspiciousReceivedPatterns: []string{},
	}

	authHeader := input.Headers["authentication-results"]
	if authHeader != "" {
		a.parseAuthResults(authHeader, signals)
		signals.Confidence = 0.9
	} else {
		// Received-SPF is a weaker, SPF-only fallback
		if spf := input.Headers["received-spf"]; spf != "" {
			fields := strings.Fields(strings.ToLower(spf))
			if len(fields) > 0 {
				signals.SPF.Result = strings.TrimSpace(fields[0])
			}
			signals.Confidence = 0.6
		} else {
			signals.Confidence = 0.4
		}
	}

	signals.FromReplyToMismatch = fromReplyToMismatch(input)

	hops := receivedHops(input)
	signals.ReceivedHops = len(hops)
	signals.SuspiciousReceivedPatterns = a.scanReceivedChain(hops)

	return signals
}

func (a *Analyzer) parseAuthResults(header string, signals *Signals) {
	lower := strings.ToLower(header)

	for _, m := range authParamPattern.FindAllStringSubmatch(lower, -1) {
		mechanism, result := m[1], m[2]
		var target *AuthResult
		switch mechanism {
		case "spf":
			target = &signals.SPF
		case "dkim":
			target = &signals.DKIM
		case "dmarc":
			target = &signals.DMARC
		}
		// First occurrence wins; later authserv entries restate older hops
		if target.Result == "none" {
			target.Result = result
		}
	}

	for mechanism, pattern := range authDomainParams {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			switch mechanism {
			case "spf":
				signals.SPF.Domain = m[1]
			case "dkim":
				signals.DKIM.Domain = m[1]
			case "dmarc":
				signals.DMARC.Domain = m[1]
			}
		}
	}

	if m := dmarcPolicyPattern.FindStringSubmatch(lower); m != nil {
		signals.DMARC.Policy = m[1]
	}
}

// scanReceivedChain flags private IPs, localhost relays, suspicious and
// dynamic hostnames and excessive hop counts.
func (a *Analyzer) scanReceivedChain(hops []string) []string {
	found := []string{}
	add := func(tag string) {
		for _, f := range found {
			if f == tag {
				return
			}
		}
		found = append(found, tag)
	}

	for _, hop := range hops {
		lower := strings.ToLower(hop)

		for _, ipText := range ipPattern.FindAllString(hop, -1) {
			ip := net.ParseIP(ipText)
			if ip == nil {
				continue
			}
			if ip.IsLoopback() {
				add(PatternLocalhostRelay)
				add(PatternPrivateIPInChain)
			} else if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
				add(PatternPrivateIPInChain)
			}
		}
		if strings.Contains(lower, "localhost") {
			add(PatternLocalhostRelay)
		}
		for _, name := range suspiciousRelayNames {
			if strings.Contains(lower, name) {
				add(PatternSuspiciousRelay)
				break
			}
		}
		for _, name := range dynamicHostNames {
			if strings.Contains(lower, name) {
				add(PatternDynamicClientHost)
				break
			}
		}
	}

	if len(hops) > maxReasonableHops {
		add(PatternExcessiveHops)
	}

	return found
}

func receivedHops(input *email.EmailInput) []string {
	raw := input.Headers["received"]
	if raw == "" {
		return nil
	}
	var hops []string
	for _, hop := range strings.Split(raw, "\n") {
		if strings.TrimSpace(hop) != "" {
			hops = append(hops, hop)
		}
	}
	return hops
}

func fromReplyToMismatch(input *email.EmailInput) bool {
	if input.Sender == "" || input.ReplyTo == "" {
		return false
	}
	return domainOf(input.Sender) != domainOf(input.ReplyTo)
}

func domainOf(addr string) string {
	parts := strings.Split(addr, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return ""
}
