// Package rules implements the subset of the AdGuard filtering-rule syntax
// that dnsmedic writes: exception rules which exempt a single domain (and its
// subdomains) from blocking. Rules are produced in one canonical form so that
// presence checks are plain string comparisons.
package rules

import (
	"fmt"
	"strings"

	"dnsmedic/internal/utils"

	"github.com/miekg/dns"
)

const (
	exceptionPrefix = "@@||"
	separatorSuffix = "^"

	// characters with meaning in the filtering-rule language
	ruleMetacharacters = "*|^@$/,:[]\\ "
)

// InvalidDomainError reports a domain that cannot be turned into a rule
type InvalidDomainError struct {
	Domain string
	Reason string
}

func (e *InvalidDomainError) Error() string {
	return fmt.Sprintf("invalid domain %q: %s", e.Domain, e.Reason)
}

// NormalizeDomain lower-cases a domain, strips a trailing root dot and checks
// that it is a plain DNS name without rule metacharacters.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")

	if d == "" {
		return "", &InvalidDomainError{Domain: domain, Reason: "empty"}
	}
	if strings.ContainsAny(d, ruleMetacharacters) {
		return "", &InvalidDomainError{Domain: domain, Reason: "contains filtering rule metacharacters"}
	}
	if err := utils.ValidateDomainLength(d); err != nil {
		return "", &InvalidDomainError{Domain: domain, Reason: err.Error()}
	}
	if _, ok := dns.IsDomainName(d); !ok {
		return "", &InvalidDomainError{Domain: domain, Reason: "not a valid DNS name"}
	}
	for _, label := range dns.SplitDomainName(d) {
		if label == "" {
			return "", &InvalidDomainError{Domain: domain, Reason: "empty label"}
		}
		for _, r := range label {
			if !isHostnameRune(r) {
				return "", &InvalidDomainError{Domain: domain, Reason: fmt.Sprintf("unexpected character %q", r)}
			}
		}
	}

	return d, nil
}

func isHostnameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// WhitelistRule returns the canonical exception rule for domain,
// e.g. "@@||example.com^".
func WhitelistRule(domain string) (string, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return "", err
	}
	return exceptionPrefix + d + separatorSuffix, nil
}

// DomainFromRule extracts the domain from a canonical exception rule.
// Rules with modifiers or any other shape are not recognised.
func DomainFromRule(rule string) (string, bool) {
	if !strings.HasPrefix(rule, exceptionPrefix) || !strings.HasSuffix(rule, separatorSuffix) {
		return "", false
	}
	d := strings.TrimSuffix(strings.TrimPrefix(rule, exceptionPrefix), separatorSuffix)
	if d == "" {
		return "", false
	}
	if n, err := NormalizeDomain(d); err != nil || n != d {
		return "", false
	}
	return d, true
}

// RuleSet answers exact-match membership questions over a rule list
type RuleSet map[string]struct{}

// NewRuleSet indexes rules for lookup. Duplicates in the input are harmless.
func NewRuleSet(rules []string) RuleSet {
	set := make(RuleSet, len(rules))
	for _, r := range rules {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether rule is an exact member of the set
func (s RuleSet) Contains(rule string) bool {
	_, ok := s[rule]
	return ok
}

// Add inserts rule into the set
func (s RuleSet) Add(rule string) {
	s[rule] = struct{}{}
}
